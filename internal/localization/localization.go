// Package localization renders the new-message alert in the user's language.
// Catalogs are flat JSON objects, one file per language code ("en.json").
package localization

import (
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"sort"
	"strings"
	"sync"
)

// DefaultLanguage backs every key missing from the requested catalog.
const DefaultLanguage = "en"

// Catalog keys of the alert texts.
const (
	KeyNewMessage = "new_message_alert"
	KeyOpenChat   = "open_chat_button"
	KeyDismiss    = "dismiss_button"
)

// Alert is a new-message alert ready to be sent.
type Alert struct {
	Text     string
	OpenChat string
	Dismiss  string
}

// Localizer holds the loaded catalogs.
type Localizer struct {
	mu       sync.RWMutex
	catalogs map[string]map[string]string
}

// NewLocalizer loads every catalog in dir.
func NewLocalizer(dir string) (*Localizer, error) {
	if _, err := os.Stat(dir); err != nil {
		return nil, fmt.Errorf("locales directory: %w", err)
	}
	return Load(os.DirFS(dir))
}

// Load reads the *.json catalogs at the root of fsys.
func Load(fsys fs.FS) (*Localizer, error) {
	names, err := fs.Glob(fsys, "*.json")
	if err != nil {
		return nil, err
	}

	l := &Localizer{catalogs: make(map[string]map[string]string, len(names))}
	for _, name := range names {
		data, err := fs.ReadFile(fsys, name)
		if err != nil {
			return nil, fmt.Errorf("read catalog %s: %w", name, err)
		}
		catalog := make(map[string]string)
		if err := json.Unmarshal(data, &catalog); err != nil {
			return nil, fmt.Errorf("parse catalog %s: %w", name, err)
		}
		l.catalogs[strings.TrimSuffix(name, ".json")] = catalog
	}
	return l, nil
}

// Alert renders the alert for a message from sender.
func (l *Localizer) Alert(lang, sender, text string) Alert {
	return Alert{
		Text:     fmt.Sprintf(l.Text(lang, KeyNewMessage), sender, text),
		OpenChat: l.Text(lang, KeyOpenChat),
		Dismiss:  l.Text(lang, KeyDismiss),
	}
}

// Text returns key in lang, then in DefaultLanguage, then the key itself.
func (l *Localizer) Text(lang, key string) string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	for _, code := range []string{lang, DefaultLanguage} {
		if value, ok := l.catalogs[code][key]; ok {
			return value
		}
	}
	return key
}

// Languages returns the loaded language codes, sorted.
func (l *Localizer) Languages() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	langs := make([]string, 0, len(l.catalogs))
	for code := range l.catalogs {
		langs = append(langs, code)
	}
	sort.Strings(langs)
	return langs
}
