package roomkey_test

import (
	"garagechat/backend/internal/roomkey"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDerive_Symmetric(t *testing.T) {
	ab, err := roomkey.Derive("u1", "u2")
	require.NoError(t, err)
	ba, err := roomkey.Derive("u2", "u1")
	require.NoError(t, err)

	assert.Equal(t, ab, ba)
	assert.Equal(t, "u1_u2", ab)
}

func TestDerive_Deterministic(t *testing.T) {
	pairs := [][2]string{
		{"u1", "u2"},
		{"mechanic-7", "client-3"},
		{"Z", "a"},
		{"f47ac10b-58cc-4372-a567-0e02b2c3d479", "9b2d"},
		{"same", "same"},
	}
	for _, p := range pairs {
		first, err := roomkey.Derive(p[0], p[1])
		require.NoError(t, err)
		second, err := roomkey.Derive(p[0], p[1])
		require.NoError(t, err)
		swapped, err := roomkey.Derive(p[1], p[0])
		require.NoError(t, err)

		assert.Equal(t, first, second, "pair %v", p)
		assert.Equal(t, first, swapped, "pair %v", p)
	}
}

func TestDerive_InvalidParticipant(t *testing.T) {
	tests := []struct {
		name string
		a, b string
	}{
		{"empty first", "", "u2"},
		{"empty second", "u1", ""},
		{"both empty", "", ""},
		{"separator in id", "u_1", "u2"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := roomkey.Derive(tt.a, tt.b)
			assert.ErrorIs(t, err, roomkey.ErrInvalidParticipant)
			assert.Empty(t, key)
		})
	}
}

func TestParticipants(t *testing.T) {
	a, b, err := roomkey.Participants("u1_u2")
	require.NoError(t, err)
	assert.Equal(t, "u1", a)
	assert.Equal(t, "u2", b)

	for _, bad := range []string{"", "u1", "u1_", "_u2", "u1_u2_u3", "u2_u1"} {
		_, _, err := roomkey.Participants(bad)
		assert.ErrorIs(t, err, roomkey.ErrInvalidParticipant, "key %q", bad)
	}
}

func TestOther(t *testing.T) {
	other, err := roomkey.Other("u1_u3", "u1")
	require.NoError(t, err)
	assert.Equal(t, "u3", other)

	other, err = roomkey.Other("u1_u3", "u3")
	require.NoError(t, err)
	assert.Equal(t, "u1", other)

	_, err = roomkey.Other("u1_u3", "u2")
	assert.ErrorIs(t, err, roomkey.ErrInvalidParticipant)

	assert.True(t, roomkey.Contains("u1_u3", "u3"))
	assert.False(t, roomkey.Contains("u1_u3", "u2"))
}
