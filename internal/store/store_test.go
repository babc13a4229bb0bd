package store

import (
	"path/filepath"
	"testing"

	"cottbot/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "bot.db"))
	require.NoError(t, err, "Open")
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPreferencesDefaults(t *testing.T) {
	s := newTestStore(t)

	prefs, err := s.Preferences("user-1")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultModel, prefs.Model)
	assert.Equal(t, "femboy", prefs.PromptVariant)
}

func TestSetModelUpsert(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetModel("user-1", "z-ai/glm-4.7"))
	require.NoError(t, s.SetModel("user-1", "google/gemini-2.5-flash"))

	prefs, err := s.Preferences("user-1")
	require.NoError(t, err)
	assert.Equal(t, "google/gemini-2.5-flash", prefs.Model)
	// Variant untouched by model upsert.
	assert.Equal(t, "femboy", prefs.PromptVariant)
}

func TestSetPromptVariantPreservesModel(t *testing.T) {
	s := newTestStore(t)

	require.NoError(t, s.SetModel("user-1", "z-ai/glm-4.7"))
	require.NoError(t, s.SetPromptVariant("user-1", "cat-girl"))

	prefs, err := s.Preferences("user-1")
	require.NoError(t, err)
	assert.Equal(t, "cat-girl", prefs.PromptVariant)
	assert.Equal(t, "z-ai/glm-4.7", prefs.Model)
}

func TestLegacyModelMigratedOnOpen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "bot.db")

	s, err := Open(dbPath)
	require.NoError(t, err)
	_, err = s.db.Exec(
		`INSERT INTO user_preferences (user_id, model) VALUES (?, ?)`,
		"user-legacy", "moonshot-v1-8k")
	require.NoError(t, err, "seed")
	s.Close()

	reopened, err := Open(dbPath)
	require.NoError(t, err, "reopen")
	defer reopened.Close()

	prefs, err := reopened.Preferences("user-legacy")
	require.NoError(t, err)
	assert.Equal(t, models.DefaultModel, prefs.Model)
}

func TestBanUnban(t *testing.T) {
	s := newTestStore(t)

	banned, err := s.IsBanned("user-1")
	require.NoError(t, err)
	assert.False(t, banned, "fresh user reported banned")

	require.NoError(t, s.Ban("user-1", "admin-9", "spamming"))
	banned, err = s.IsBanned("user-1")
	require.NoError(t, err)
	assert.True(t, banned)

	records, err := s.Bans()
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "admin-9", records[0].BannedBy)
	assert.Equal(t, "spamming", records[0].Reason)

	removed, err := s.Unban("user-1")
	require.NoError(t, err)
	assert.True(t, removed, "Unban did not report removal")

	removed, err = s.Unban("user-1")
	require.NoError(t, err)
	assert.False(t, removed, "Unban reported removal for nonexistent ban")
}

func TestAdminRegistry(t *testing.T) {
	s := newTestStore(t)

	isAdmin, err := s.IsAdmin("user-1")
	require.NoError(t, err)
	assert.False(t, isAdmin, "fresh user reported admin")

	require.NoError(t, s.AddAdmin("user-1"))
	// Idempotent.
	require.NoError(t, s.AddAdmin("user-1"))

	isAdmin, err = s.IsAdmin("user-1")
	require.NoError(t, err)
	assert.True(t, isAdmin)
}
