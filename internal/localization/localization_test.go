package localization_test

import (
	"garagechat/backend/internal/localization"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalizer_BundledAlert(t *testing.T) {
	l, err := localization.NewLocalizer("locales")
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "uk"}, l.Languages())
	assert.Equal(t, localization.Alert{
		Text:     "New message from Bob:\nhi",
		OpenChat: "Open chat",
		Dismiss:  l.Text("en", localization.KeyDismiss),
	}, l.Alert("en", "Bob", "hi"))
	assert.Equal(t, "Відкрити чат", l.Alert("uk", "Bob", "hi").OpenChat)
}

func TestLocalizer_Fallbacks(t *testing.T) {
	l, err := localization.Load(fstest.MapFS{
		"en.json":   {Data: []byte(`{"greeting":"hello","only_en":"english"}`)},
		"uk.json":   {Data: []byte(`{"greeting":"привіт"}`)},
		"notes.txt": {Data: []byte(`ignored`)},
	})
	require.NoError(t, err)

	assert.Equal(t, []string{"en", "uk"}, l.Languages())
	assert.Equal(t, "привіт", l.Text("uk", "greeting"))
	assert.Equal(t, "english", l.Text("uk", "only_en"), "falls back to the default language")
	assert.Equal(t, "hello", l.Text("fr", "greeting"), "unknown language falls back")
	assert.Equal(t, "missing_key", l.Text("en", "missing_key"))
	assert.Equal(t, localization.KeyOpenChat, l.Alert("en", "Bob", "hi").OpenChat)
}

func TestNewLocalizer_Errors(t *testing.T) {
	_, err := localization.NewLocalizer(filepath.Join(t.TempDir(), "absent"))
	assert.Error(t, err)

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "en.json"), []byte(`{not json`), 0o644))
	_, err = localization.NewLocalizer(dir)
	assert.Error(t, err)
}
