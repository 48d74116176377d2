// Package roomkey derives the canonical identifier of a two-party
// conversation. The key is a pure function of the unordered participant pair,
// so both sides compute the same key without asking the server.
package roomkey

import (
	"errors"
	"fmt"
	"strings"
)

// Separator joins the two participant ids. Participant ids never contain it.
const Separator = "_"

// ErrInvalidParticipant is returned for empty or malformed participant ids.
var ErrInvalidParticipant = errors.New("invalid participant")

// Derive returns the room key for participants a and b.
// Derive(a, b) == Derive(b, a) for every valid pair.
func Derive(a, b string) (string, error) {
	if err := validate(a); err != nil {
		return "", err
	}
	if err := validate(b); err != nil {
		return "", err
	}
	if b < a {
		a, b = b, a
	}
	return a + Separator + b, nil
}

// Participants splits a room key into its two participant ids, in key order.
func Participants(key string) (string, string, error) {
	parts := strings.Split(key, Separator)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("%w: malformed room key %q", ErrInvalidParticipant, key)
	}
	if parts[1] < parts[0] {
		return "", "", fmt.Errorf("%w: room key %q is not canonical", ErrInvalidParticipant, key)
	}
	return parts[0], parts[1], nil
}

// Other returns the participant of key that is not self.
func Other(key, self string) (string, error) {
	a, b, err := Participants(key)
	if err != nil {
		return "", err
	}
	switch self {
	case a:
		return b, nil
	case b:
		return a, nil
	}
	return "", fmt.Errorf("%w: %q is not a member of room %q", ErrInvalidParticipant, self, key)
}

// Contains reports whether id is one of the participants of key.
func Contains(key, id string) bool {
	_, err := Other(key, id)
	return err == nil
}

func validate(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty id", ErrInvalidParticipant)
	}
	if strings.Contains(id, Separator) {
		return fmt.Errorf("%w: id %q contains %q", ErrInvalidParticipant, id, Separator)
	}
	return nil
}
