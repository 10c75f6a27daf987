package sys

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/mattn/go-sqlite3"
)

// --- Database Connection & Lifecycle ---

var DB *sql.DB

func InitDatabase(ctx context.Context, dataSourceName string) error {
	// Explicitly reference sqlite3 driver to avoid blank identifier
	// The driver registers itself via its init() function
	_ = sqlite3.SQLiteDriver{}

	var err error
	DB, err = sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return err
	}

	DB.SetMaxOpenConns(5)

	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA cache_size=-2000;",
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	for _, p := range pragmas {
		if _, err := DB.ExecContext(initCtx, p); err != nil {
			return fmt.Errorf(MsgDatabasePragmaError, p, err)
		}
	}

	tx, err := DB.BeginTx(initCtx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	tableQueries := []string{
		`CREATE TABLE IF NOT EXISTS sounds (
			name TEXT PRIMARY KEY,
			source_kind TEXT NOT NULL,
			location TEXT NOT NULL,
			volume REAL NOT NULL DEFAULT 1.0,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS plays (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			sound TEXT NOT NULL,
			user_id TEXT NOT NULL,
			played_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS bot_config (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL,
			updated_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)`,
	}

	for _, q := range tableQueries {
		if _, err := tx.ExecContext(initCtx, q); err != nil {
			return fmt.Errorf(MsgDatabaseTableError, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	migrations := []string{
		"ALTER TABLE sounds ADD COLUMN volume REAL NOT NULL DEFAULT 1.0",
		"CREATE INDEX IF NOT EXISTS idx_plays_sound ON plays(sound)",
	}

	for _, m := range migrations {
		if _, err := DB.ExecContext(initCtx, m); err != nil {
			if !strings.Contains(err.Error(), "duplicate column") {
				return fmt.Errorf("failed to migrate database: %w", err)
			}
		}
	}

	LogDatabase(MsgDatabaseInitSuccess)
	return nil
}

func CloseDatabase() {
	if DB != nil {
		DB.Close()
	}
}

// --- Infrastructure & Bot Persistence ---

// BotConfig helpers are used by the loader for mode tracking and state.
func GetBotConfig(ctx context.Context, key string) (string, error) {
	var value string
	err := DB.QueryRowContext(ctx, "SELECT value FROM bot_config WHERE key = ?", key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return value, err
}

func SetBotConfig(ctx context.Context, key, value string) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO bot_config (key, value) VALUES (?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = CURRENT_TIMESTAMP
	`, key, value)
	return err
}

// --- Sound Catalog ---

type SourceKind string

const (
	SourceLocal  SourceKind = "local"
	SourceRemote SourceKind = "remote"
)

type SoundRecord struct {
	Name       string
	SourceKind SourceKind
	Location   string
	Volume     float64
	UpdatedAt  time.Time
}

func GetSound(ctx context.Context, name string) (*SoundRecord, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT name, source_kind, location, volume, updated_at
		FROM sounds WHERE name = ?
	`, name)

	rec := &SoundRecord{}
	var kind string
	err := row.Scan(&rec.Name, &kind, &rec.Location, &rec.Volume, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.SourceKind = SourceKind(kind)
	return rec, nil
}

func ListSounds(ctx context.Context) ([]*SoundRecord, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT name, source_kind, location, volume, updated_at
		FROM sounds ORDER BY name ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sounds []*SoundRecord
	for rows.Next() {
		rec := &SoundRecord{}
		var kind string
		if err := rows.Scan(&rec.Name, &kind, &rec.Location, &rec.Volume, &rec.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan sound: %w", err)
		}
		rec.SourceKind = SourceKind(kind)
		sounds = append(sounds, rec)
	}
	return sounds, rows.Err()
}

// SearchSounds returns up to limit sound names matching the prefix,
// used by the play command's autocomplete.
func SearchSounds(ctx context.Context, prefix string, limit int) ([]string, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT name FROM sounds WHERE name LIKE ? ORDER BY name ASC LIMIT ?
	`, prefix+"%", limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

func UpsertSound(ctx context.Context, rec *SoundRecord) error {
	_, err := DB.ExecContext(ctx, `
		INSERT INTO sounds (name, source_kind, location, volume) VALUES (?, ?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			source_kind = excluded.source_kind,
			location = excluded.location,
			volume = excluded.volume,
			updated_at = CURRENT_TIMESTAMP
	`, rec.Name, string(rec.SourceKind), rec.Location, rec.Volume)
	return err
}

func DeleteSound(ctx context.Context, name string) (bool, error) {
	result, err := DB.ExecContext(ctx, "DELETE FROM sounds WHERE name = ?", name)
	if err != nil {
		return false, err
	}
	rows, err := result.RowsAffected()
	return rows > 0, err
}

// FindSoundByLocation maps a local filename back to its catalog entry,
// used by the library watcher to translate disk events into invalidations.
func FindSoundByLocation(ctx context.Context, location string) (*SoundRecord, error) {
	row := DB.QueryRowContext(ctx, `
		SELECT name, source_kind, location, volume, updated_at
		FROM sounds WHERE source_kind = ? AND location = ?
	`, string(SourceLocal), location)

	rec := &SoundRecord{}
	var kind string
	err := row.Scan(&rec.Name, &kind, &rec.Location, &rec.Volume, &rec.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	rec.SourceKind = SourceKind(kind)
	return rec, nil
}

// --- Play Statistics ---

type PlayCount struct {
	Sound string
	Count int
}

func RecordPlay(ctx context.Context, sound, userID string) error {
	_, err := DB.ExecContext(ctx, "INSERT INTO plays (sound, user_id) VALUES (?, ?)", sound, userID)
	return err
}

func GetTopPlays(ctx context.Context, limit int) ([]PlayCount, error) {
	rows, err := DB.QueryContext(ctx, `
		SELECT sound, COUNT(*) AS plays FROM plays
		GROUP BY sound ORDER BY plays DESC, sound ASC LIMIT ?
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var counts []PlayCount
	for rows.Next() {
		var pc PlayCount
		if err := rows.Scan(&pc.Sound, &pc.Count); err != nil {
			return nil, err
		}
		counts = append(counts, pc)
	}
	return counts, rows.Err()
}

func GetSoundPlayCount(ctx context.Context, sound string) (int, error) {
	var count int
	err := DB.QueryRowContext(ctx, "SELECT COUNT(*) FROM plays WHERE sound = ?", sound).Scan(&count)
	return count, err
}
