// Package store persists user preferences, bans, and admin approvals to SQLite.
package store

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"cottbot/internal/logging"
	"cottbot/internal/models"
	"cottbot/internal/types"

	_ "github.com/mattn/go-sqlite3"
)

// Store backs the preference store, ban registry, and admin registry with a
// single SQLite database.
//
// Storage location defaults to .cottbot/bot.db.
type Store struct {
	db     *sql.DB
	mu     sync.RWMutex
	dbPath string
}

// BanRecord describes a banned user.
type BanRecord struct {
	UserID   string
	BannedBy string
	Reason   string
	BannedAt time.Time
}

// Open opens (or creates) the database at dbPath and applies the schema.
func Open(dbPath string) (*Store, error) {
	logging.StoreDebug("Opening store at path: %s", dbPath)

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logging.StoreError("Failed to create store directory %s: %v", dir, err)
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		logging.StoreError("Failed to open database at %s: %v", dbPath, err)
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initialize(); err != nil {
		logging.StoreError("Failed to initialize store schema: %v", err)
		db.Close()
		return nil, err
	}
	if err := s.migrateLegacyModels(); err != nil {
		logging.StoreError("Legacy model migration failed: %v", err)
		db.Close()
		return nil, err
	}

	logging.Store("Store opened at %s", dbPath)
	return s, nil
}

// initialize creates the database schema.
func (s *Store) initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS user_preferences (
		user_id TEXT PRIMARY KEY,
		system_prompt_type TEXT NOT NULL DEFAULT 'femboy',
		model TEXT NOT NULL DEFAULT 'moonshotai/kimi-k2',
		created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
		updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS banned_users (
		user_id TEXT PRIMARY KEY,
		banned_by TEXT NOT NULL,
		reason TEXT,
		banned_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);

	CREATE TABLE IF NOT EXISTS approved_admins (
		user_id TEXT PRIMARY KEY,
		added_at DATETIME DEFAULT CURRENT_TIMESTAMP
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// migrateLegacyModels rewrites retired model IDs stored before the catalog
// moved to OpenRouter naming.
func (s *Store) migrateLegacyModels() error {
	for legacy, current := range models.LegacyAliases {
		res, err := s.db.Exec(
			`UPDATE user_preferences SET model = ?, updated_at = CURRENT_TIMESTAMP WHERE model = ?`,
			current, legacy,
		)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n > 0 {
			logging.Store("Migrated %d preference rows from %s to %s", n, legacy, current)
		}
	}
	return nil
}

// Preferences returns the stored preferences for userID, or defaults when
// the user has no row yet.
func (s *Store) Preferences(userID string) (*types.Preferences, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	prefs := &types.Preferences{
		UserID:        userID,
		Model:         models.DefaultModel,
		PromptVariant: "femboy",
	}

	row := s.db.QueryRow(
		`SELECT system_prompt_type, model FROM user_preferences WHERE user_id = ?`, userID)
	err := row.Scan(&prefs.PromptVariant, &prefs.Model)
	if err == sql.ErrNoRows {
		return prefs, nil
	}
	if err != nil {
		return nil, err
	}

	// Defensive migration for rows written before migrateLegacyModels ran.
	prefs.Model = models.Normalize(prefs.Model)
	return prefs, nil
}

// SetModel upserts the model preference for userID.
func (s *Store) SetModel(userID, modelID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO user_preferences (user_id, model)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			model = excluded.model,
			updated_at = CURRENT_TIMESTAMP`,
		userID, modelID,
	)
	if err != nil {
		logging.StoreError("Failed to set model for %s: %v", userID, err)
		return err
	}
	logging.StoreDebug("Set model for %s: %s", userID, modelID)
	return nil
}

// SetPromptVariant upserts the prompt-variant preference for userID.
func (s *Store) SetPromptVariant(userID, variant string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO user_preferences (user_id, system_prompt_type)
		VALUES (?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			system_prompt_type = excluded.system_prompt_type,
			updated_at = CURRENT_TIMESTAMP`,
		userID, variant,
	)
	if err != nil {
		logging.StoreError("Failed to set prompt variant for %s: %v", userID, err)
		return err
	}
	logging.StoreDebug("Set prompt variant for %s: %s", userID, variant)
	return nil
}

// IsBanned reports whether userID has a ban row.
func (s *Store) IsBanned(userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM banned_users WHERE user_id = ?`, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Ban records a ban for userID. Re-banning updates the existing row.
func (s *Store) Ban(userID, bannedBy, reason string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO banned_users (user_id, banned_by, reason)
		VALUES (?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			banned_by = excluded.banned_by,
			reason = excluded.reason,
			banned_at = CURRENT_TIMESTAMP`,
		userID, bannedBy, reason,
	)
	if err != nil {
		logging.StoreError("Failed to ban %s: %v", userID, err)
		return err
	}
	logging.Store("Banned user %s (by %s)", userID, bannedBy)
	return nil
}

// Unban removes a ban row and reports whether one existed.
func (s *Store) Unban(userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec(`DELETE FROM banned_users WHERE user_id = ?`, userID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		logging.Store("Unbanned user %s", userID)
	}
	return n > 0, nil
}

// Bans returns all ban records, newest first.
func (s *Store) Bans() ([]BanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(`
		SELECT user_id, banned_by, COALESCE(reason, ''), banned_at
		FROM banned_users ORDER BY banned_at DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []BanRecord
	for rows.Next() {
		var rec BanRecord
		var bannedAt string
		if err := rows.Scan(&rec.UserID, &rec.BannedBy, &rec.Reason, &bannedAt); err != nil {
			continue
		}
		rec.BannedAt, _ = time.Parse("2006-01-02 15:04:05", bannedAt)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// IsAdmin reports whether userID is an approved admin.
func (s *Store) IsAdmin(userID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var one int
	err := s.db.QueryRow(`SELECT 1 FROM approved_admins WHERE user_id = ?`, userID).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// AddAdmin approves userID as an admin. Already-approved is a no-op.
func (s *Store) AddAdmin(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		`INSERT OR IGNORE INTO approved_admins (user_id) VALUES (?)`, userID)
	if err != nil {
		logging.StoreError("Failed to add admin %s: %v", userID, err)
		return err
	}
	return nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.db != nil {
		logging.Store("Closing store at %s", s.dbPath)
		return s.db.Close()
	}
	return nil
}
