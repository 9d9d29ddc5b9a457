package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/mattn/go-sqlite3"

	"creator-bridge/internal/bridge"
	"creator-bridge/internal/database/migrations"
)

// timeFormat is fixed width so TEXT columns compare in time order.
const timeFormat = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements bridge.Store using SQLite.
type SQLiteStore struct {
	db   *sql.DB
	path string
}

var _ bridge.Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens the database at path and applies pending migrations.
// path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}
	return &SQLiteStore{db: db, path: path}, nil
}

// NewSQLiteStoreFromDB wraps an existing, already migrated connection.
func NewSQLiteStoreFromDB(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

// OpenConnection opens and configures a SQLite connection with the PRAGMAs the store relies on.
// Exported for tools and tests that need a properly configured connection.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// A single connection serializes writers and keeps ":memory:" alive across calls.
	db.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA foreign_keys = ON"}
	if path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL", "PRAGMA busy_timeout = 5000", "PRAGMA synchronous = NORMAL")
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", p, err)
		}
	}
	return db, nil
}

// DB exposes the underlying connection for maintenance commands.
func (s *SQLiteStore) DB() *sql.DB { return s.db }

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// BackupTo writes a consistent copy of the database to dest.
func (s *SQLiteStore) BackupTo(ctx context.Context, dest string) error {
	if _, err := s.db.ExecContext(ctx, "VACUUM INTO ?", dest); err != nil {
		return fmt.Errorf("backing up database: %w", err)
	}
	return nil
}

// DumpSchema returns the CREATE statements of the migrated schema,
// excluding SQLite internals and the migration tracking table.
func (s *SQLiteStore) DumpSchema(ctx context.Context) (string, error) {
	const query = `
		SELECT sql || ';'
		FROM sqlite_master
		WHERE type IN ('table', 'index', 'trigger')
		  AND sql IS NOT NULL
		  AND name NOT LIKE 'sqlite_%'
		  AND tbl_name != 'schema_migrations'
		ORDER BY
		  CASE type
		    WHEN 'table' THEN 1
		    WHEN 'index' THEN 2
		    ELSE 3
		  END,
		  name`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return "", fmt.Errorf("query failed: %w", err)
	}
	defer rows.Close()

	var b strings.Builder
	for rows.Next() {
		var stmt string
		if err := rows.Scan(&stmt); err != nil {
			return "", fmt.Errorf("scan failed: %w", err)
		}
		b.WriteString(stmt)
		b.WriteString("\n\n")
	}
	if err := rows.Err(); err != nil {
		return "", fmt.Errorf("rows error: %w", err)
	}
	return b.String(), nil
}

// Records

const recordColumns = `id, user_id, connection_id, source_platform, source_account_id, source_post_id,
	source_url, original_media_url, local_path, checksum, file_size, format, metadata, status,
	priority, import_method, targets, auto_sync_enabled, auto_sync_destinations, last_auto_sync_at,
	is_archived, archived_at, created_at, updated_at`

func (s *SQLiteStore) CreateRecord(ctx context.Context, rec *bridge.ContentRecord) error {
	meta, err := json.Marshal(rec.Metadata)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `INSERT INTO content_records (`+recordColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.UserID, rec.ConnectionID, rec.SourcePlatform, rec.SourceAccountID, rec.SourcePostID,
		rec.SourceURL, rec.OriginalMediaURL, rec.Media.LocalPath, rec.Media.Checksum, rec.Media.FileSize, rec.Media.Format,
		string(meta), string(rec.Status), rec.Priority, string(rec.ImportMethod), encodeList(rec.Targets),
		rec.AutoSync.Enabled, encodeList(rec.AutoSync.Destinations), nullTime(rec.AutoSync.LastAutoSyncAt),
		rec.IsArchived, nullTime(rec.ArchivedAt), formatTime(rec.CreatedAt), formatTime(rec.UpdatedAt),
	)
	if isUniqueViolation(err) {
		return fmt.Errorf("%s/%s: %w", rec.SourcePlatform, rec.SourcePostID, bridge.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("inserting record: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetRecord(ctx context.Context, userID, id string) (*bridge.ContentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM content_records WHERE user_id = ? AND id = ?`, userID, id)
	return s.loadRecord(ctx, row)
}

func (s *SQLiteStore) FindRecordBySourcePost(ctx context.Context, userID, platform, postID string) (*bridge.ContentRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+recordColumns+` FROM content_records
		WHERE user_id = ? AND source_platform = ? AND source_post_id = ?`, userID, platform, postID)
	return s.loadRecord(ctx, row)
}

// loadRecord scans a single record and attaches its history and errors.
func (s *SQLiteStore) loadRecord(ctx context.Context, row *sql.Row) (*bridge.ContentRecord, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("reading record: %w", err)
	}

	if rec.SyncHistory, err = s.syncHistory(ctx, rec.ID); err != nil {
		return nil, err
	}
	if rec.Errors, err = s.recordErrors(ctx, rec.ID); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *SQLiteStore) ListRecords(ctx context.Context, f bridge.RecordFilter) ([]*bridge.ContentRecord, error) {
	var (
		where = []string{"user_id = ?"}
		args  = []any{f.UserID}
	)
	if f.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(f.Status))
	}
	if f.Platform != "" {
		where = append(where, "source_platform = ?")
		args = append(args, f.Platform)
	}
	if !f.IncludeArchived {
		where = append(where, "is_archived = 0")
	}
	if f.Search != "" {
		where = append(where, "(metadata LIKE ? ESCAPE '\\' OR source_post_id LIKE ? ESCAPE '\\')")
		pattern := "%" + escapeLike(f.Search) + "%"
		args = append(args, pattern, pattern)
	}

	query := `SELECT ` + recordColumns + ` FROM content_records WHERE ` + strings.Join(where, " AND ") +
		` ORDER BY priority DESC, created_at DESC, id`
	limit := f.Limit
	if limit <= 0 {
		limit = -1
	}
	query += ` LIMIT ? OFFSET ?`
	args = append(args, limit, max(f.Offset, 0))

	return s.queryRecords(ctx, query, args...)
}

func (s *SQLiteStore) queryRecords(ctx context.Context, query string, args ...any) ([]*bridge.ContentRecord, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	var recs []*bridge.ContentRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("reading record: %w", err)
		}
		recs = append(recs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return recs, nil
}

// Pipeline state

func (s *SQLiteStore) ClaimRecord(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE content_records
		SET status = 'downloading', claimed_at = ?, updated_at = ?
		WHERE user_id = ? AND id = ? AND status = 'queued' AND is_archived = 0`,
		formatTime(at), formatTime(at), userID, id)
	if err != nil {
		return false, fmt.Errorf("claiming record: %w", err)
	}
	return affectedOne(res)
}

func (s *SQLiteStore) TransitionStatus(ctx context.Context, userID, id string, from, to bridge.Status, at time.Time) (bool, error) {
	if !bridge.CanTransition(from, to) {
		return false, fmt.Errorf("invalid transition %s -> %s", from, to)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE content_records SET status = ?, updated_at = ?
		WHERE user_id = ? AND id = ? AND status = ?`,
		string(to), formatTime(at), userID, id, string(from))
	if err != nil {
		return false, fmt.Errorf("updating status: %w", err)
	}
	return affectedOne(res)
}

func (s *SQLiteStore) UpdateMedia(ctx context.Context, userID, id string, media bridge.MediaFile, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE content_records
		SET local_path = ?, checksum = ?, file_size = ?, format = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`,
		media.LocalPath, media.Checksum, media.FileSize, media.Format, formatTime(at), userID, id)
	if err != nil {
		return fmt.Errorf("updating media: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendSyncEntry(ctx context.Context, e *bridge.SyncEntry) error {
	res, err := s.db.ExecContext(ctx, `INSERT INTO sync_history
		(record_id, destination, destination_id, destination_url, status, error, started_at, completed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		e.RecordID, e.Destination, e.DestinationID, e.DestinationURL, string(e.Status), e.Error,
		formatTime(e.StartedAt), nullTime(e.CompletedAt))
	if err != nil {
		return fmt.Errorf("appending sync entry: %w", err)
	}
	if id, err := res.LastInsertId(); err == nil {
		e.ID = id
	}
	return nil
}

func (s *SQLiteStore) MarkSynced(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	ts := formatTime(at)
	res, err := s.db.ExecContext(ctx, `UPDATE content_records
		SET status = 'synced', local_path = '', targets = '[]', claimed_at = NULL, updated_at = ?,
		    last_auto_sync_at = ?
		WHERE user_id = ? AND id = ? AND status = 'uploading'`,
		ts, ts, userID, id)
	if err != nil {
		return false, fmt.Errorf("marking record synced: %w", err)
	}
	return affectedOne(res)
}

func (s *SQLiteStore) MarkError(ctx context.Context, userID, id string, from bridge.Status, stageErr bridge.StageError, clearMedia bool) (bool, error) {
	if !bridge.CanTransition(from, bridge.StatusError) {
		return false, fmt.Errorf("invalid transition %s -> %s", from, bridge.StatusError)
	}

	var ok bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		set := "status = 'error', claimed_at = NULL, updated_at = ?"
		if clearMedia {
			set += ", local_path = ''"
		}
		res, err := tx.ExecContext(ctx, `UPDATE content_records SET `+set+`
			WHERE user_id = ? AND id = ? AND status = ?`,
			formatTime(stageErr.OccurredAt), userID, id, string(from))
		if err != nil {
			return fmt.Errorf("updating status: %w", err)
		}
		if ok, err = affectedOne(res); err != nil || !ok {
			return err
		}

		_, err = tx.ExecContext(ctx, `INSERT INTO record_errors (record_id, stage, message, occurred_at) VALUES (?, ?, ?, ?)`,
			id, string(stageErr.Stage), stageErr.Message, formatTime(stageErr.OccurredAt))
		if err != nil {
			return fmt.Errorf("recording error: %w", err)
		}
		return nil
	})
	return ok, err
}

func (s *SQLiteStore) ResetForRetry(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	var ok bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `UPDATE content_records SET status = 'queued', updated_at = ?
			WHERE user_id = ? AND id = ? AND status = 'error'`,
			formatTime(at), userID, id)
		if err != nil {
			return fmt.Errorf("resetting status: %w", err)
		}
		if ok, err = affectedOne(res); err != nil || !ok {
			return err
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM record_errors WHERE record_id = ?`, id); err != nil {
			return fmt.Errorf("clearing errors: %w", err)
		}
		return nil
	})
	return ok, err
}

func (s *SQLiteStore) AddTargets(ctx context.Context, userID, id string, destinations []string, at time.Time) (bool, error) {
	var ok bool
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		var raw string
		err := tx.QueryRowContext(ctx, `SELECT targets FROM content_records
			WHERE user_id = ? AND id = ? AND status = 'queued' AND is_archived = 0`, userID, id).Scan(&raw)
		if errors.Is(err, sql.ErrNoRows) {
			return nil
		}
		if err != nil {
			return fmt.Errorf("reading targets: %w", err)
		}

		targets, err := decodeList(raw)
		if err != nil {
			return err
		}
		for _, d := range destinations {
			if !slices.Contains(targets, d) {
				targets = append(targets, d)
			}
		}

		res, err := tx.ExecContext(ctx, `UPDATE content_records SET targets = ?, updated_at = ?
			WHERE user_id = ? AND id = ? AND status = 'queued' AND is_archived = 0`,
			encodeList(targets), formatTime(at), userID, id)
		if err != nil {
			return fmt.Errorf("updating targets: %w", err)
		}
		ok, err = affectedOne(res)
		return err
	})
	return ok, err
}

// User edits

func (s *SQLiteStore) UpdateMetadata(ctx context.Context, userID, id string, m bridge.Metadata, priority int, at time.Time) error {
	meta, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encoding metadata: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `UPDATE content_records SET metadata = ?, priority = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`, string(meta), priority, formatTime(at), userID, id)
	if err != nil {
		return fmt.Errorf("updating metadata: %w", err)
	}
	return requireOne(res, id)
}

func (s *SQLiteStore) SetAutoSync(ctx context.Context, userID, id string, enabled bool, destinations []string, at time.Time) error {
	res, err := s.db.ExecContext(ctx, `UPDATE content_records
		SET auto_sync_enabled = ?, auto_sync_destinations = ?, updated_at = ?
		WHERE user_id = ? AND id = ?`, enabled, encodeList(destinations), formatTime(at), userID, id)
	if err != nil {
		return fmt.Errorf("updating auto-sync: %w", err)
	}
	return requireOne(res, id)
}

func (s *SQLiteStore) ArchiveRecord(ctx context.Context, userID, id string, at time.Time) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE content_records SET is_archived = 1, archived_at = ?, updated_at = ?
		WHERE user_id = ? AND id = ? AND is_archived = 0
		  AND status NOT IN ('downloading', 'processing', 'uploading')`,
		formatTime(at), formatTime(at), userID, id)
	if err != nil {
		return false, fmt.Errorf("archiving record: %w", err)
	}
	return affectedOne(res)
}

// Scheduling

func (s *SQLiteStore) FindAutoSyncCandidates(ctx context.Context, staleBefore time.Time, limit int) ([]*bridge.ContentRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM content_records
		WHERE auto_sync_enabled = 1 AND status = 'queued' AND is_archived = 0
		  AND (last_auto_sync_at IS NULL OR last_auto_sync_at < ?)
		ORDER BY priority DESC, created_at
		LIMIT ?`, formatTime(staleBefore), limitOrAll(limit))
}

func (s *SQLiteStore) FindQueuedWithTargets(ctx context.Context, limit int) ([]*bridge.ContentRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM content_records
		WHERE status = 'queued' AND is_archived = 0 AND targets != '[]'
		ORDER BY priority DESC, created_at
		LIMIT ?`, limitOrAll(limit))
}

func (s *SQLiteStore) FindStaleClaims(ctx context.Context, claimedBefore time.Time, limit int) ([]*bridge.ContentRecord, error) {
	return s.queryRecords(ctx, `SELECT `+recordColumns+` FROM content_records
		WHERE status IN ('downloading', 'processing', 'uploading')
		  AND (claimed_at IS NULL OR claimed_at < ?)
		ORDER BY claimed_at
		LIMIT ?`, formatTime(claimedBefore), limitOrAll(limit))
}

func (s *SQLiteStore) StagingOwners(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM content_records
		WHERE local_path != '' OR status IN ('downloading', 'processing', 'uploading')`)
	if err != nil {
		return nil, fmt.Errorf("listing staging owners: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scanning record id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Reporting

func (s *SQLiteStore) CountByStatus(ctx context.Context, userID string) (map[bridge.Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(*) FROM content_records
		WHERE user_id = ? AND is_archived = 0 GROUP BY status`, userID)
	if err != nil {
		return nil, fmt.Errorf("counting by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[bridge.Status]int, len(bridge.Statuses))
	for rows.Next() {
		var (
			status string
			n      int
		)
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[bridge.Status(status)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) CountByPlatform(ctx context.Context, userID string) (map[string]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT source_platform, COUNT(*) FROM content_records
		WHERE user_id = ? AND is_archived = 0 GROUP BY source_platform`, userID)
	if err != nil {
		return nil, fmt.Errorf("counting by platform: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var (
			platform string
			n        int
		)
		if err := rows.Scan(&platform, &n); err != nil {
			return nil, fmt.Errorf("scanning count: %w", err)
		}
		counts[platform] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) RecentCompletions(ctx context.Context, userID string, limit int) ([]*bridge.Completion, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT h.record_id, r.metadata, r.source_platform, h.destination,
			h.destination_id, h.destination_url, h.completed_at
		FROM sync_history h
		JOIN content_records r ON r.id = h.record_id
		WHERE r.user_id = ? AND h.status = 'success' AND h.completed_at IS NOT NULL
		ORDER BY h.completed_at DESC, h.id DESC
		LIMIT ?`, userID, limitOrAll(limit))
	if err != nil {
		return nil, fmt.Errorf("querying completions: %w", err)
	}
	defer rows.Close()

	var out []*bridge.Completion
	for rows.Next() {
		var (
			c         bridge.Completion
			meta      string
			platform  string
			completed string
		)
		if err := rows.Scan(&c.RecordID, &meta, &platform, &c.Destination, &c.DestinationID, &c.DestinationURL, &completed); err != nil {
			return nil, fmt.Errorf("scanning completion: %w", err)
		}
		rec := bridge.ContentRecord{SourcePlatform: platform}
		if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
			return nil, fmt.Errorf("decoding metadata: %w", err)
		}
		c.Title = rec.Title()
		if c.CompletedAt, err = parseTime(completed); err != nil {
			return nil, err
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) syncHistory(ctx context.Context, recordID string) ([]bridge.SyncEntry, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, record_id, destination, destination_id, destination_url,
			status, error, started_at, completed_at
		FROM sync_history WHERE record_id = ? ORDER BY id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("querying sync history: %w", err)
	}
	defer rows.Close()

	var entries []bridge.SyncEntry
	for rows.Next() {
		var (
			e         bridge.SyncEntry
			status    string
			started   string
			completed sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.RecordID, &e.Destination, &e.DestinationID, &e.DestinationURL,
			&status, &e.Error, &started, &completed); err != nil {
			return nil, fmt.Errorf("scanning sync entry: %w", err)
		}
		e.Status = bridge.SyncStatus(status)
		if e.StartedAt, err = parseTime(started); err != nil {
			return nil, err
		}
		if e.CompletedAt, err = parseNullTime(completed); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

func (s *SQLiteStore) recordErrors(ctx context.Context, recordID string) ([]bridge.StageError, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT stage, message, occurred_at FROM record_errors
		WHERE record_id = ? ORDER BY id`, recordID)
	if err != nil {
		return nil, fmt.Errorf("querying record errors: %w", err)
	}
	defer rows.Close()

	var errs []bridge.StageError
	for rows.Next() {
		var (
			e     bridge.StageError
			stage string
			at    string
		)
		if err := rows.Scan(&stage, &e.Message, &at); err != nil {
			return nil, fmt.Errorf("scanning record error: %w", err)
		}
		e.Stage = bridge.Stage(stage)
		if e.OccurredAt, err = parseTime(at); err != nil {
			return nil, err
		}
		errs = append(errs, e)
	}
	return errs, rows.Err()
}

// Connections

const connectionColumns = `id, user_id, platform, account_id, account_handle, access_token,
	refresh_token, token_expiry, is_active, created_at, auto_sync_enabled, auto_sync_destinations, last_checked_at`

func (s *SQLiteStore) CreateConnection(ctx context.Context, c *bridge.Connection) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO connections (`+connectionColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, c.UserID, c.Platform, c.AccountID, c.AccountHandle, c.AccessToken,
		c.RefreshToken, nullTime(c.TokenExpiry), c.IsActive, formatTime(c.CreatedAt),
		c.AutoSync, encodeList(c.AutoSyncDestinations), nullTime(c.LastCheckedAt))
	if isUniqueViolation(err) {
		return fmt.Errorf("connection %s: %w", c.ID, bridge.ErrDuplicate)
	}
	if err != nil {
		return fmt.Errorf("inserting connection: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetConnection(ctx context.Context, userID, id string) (*bridge.Connection, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+connectionColumns+` FROM connections WHERE user_id = ? AND id = ?`, userID, id)
	c, err := scanConnection(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found
	}
	if err != nil {
		return nil, fmt.Errorf("reading connection: %w", err)
	}
	return c, nil
}

func (s *SQLiteStore) ListConnections(ctx context.Context, userID string) ([]*bridge.Connection, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+connectionColumns+` FROM connections
		WHERE user_id = ? ORDER BY created_at, id`, userID)
	if err != nil {
		return nil, fmt.Errorf("querying connections: %w", err)
	}
	defer rows.Close()

	var conns []*bridge.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("reading connection: %w", err)
		}
		conns = append(conns, c)
	}
	return conns, rows.Err()
}

func (s *SQLiteStore) SetConnectionActive(ctx context.Context, userID, id string, active bool) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE connections SET is_active = ? WHERE user_id = ? AND id = ?`, active, userID, id)
	if err != nil {
		return false, fmt.Errorf("updating connection: %w", err)
	}
	return affectedOne(res)
}

func (s *SQLiteStore) SetConnectionAutoSync(ctx context.Context, userID, id string, enabled bool, destinations []string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE connections SET auto_sync_enabled = ?, auto_sync_destinations = ?
		WHERE user_id = ? AND id = ? AND is_active = 1`,
		enabled, encodeList(destinations), userID, id)
	if err != nil {
		return false, fmt.Errorf("updating connection auto-sync: %w", err)
	}
	return affectedOne(res)
}

func (s *SQLiteStore) MarkConnectionChecked(ctx context.Context, userID, id string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `UPDATE connections SET last_checked_at = ? WHERE user_id = ? AND id = ?`,
		formatTime(at), userID, id)
	if err != nil {
		return fmt.Errorf("updating connection check time: %w", err)
	}
	return nil
}

// Scanning

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*bridge.ContentRecord, error) {
	var (
		rec                      bridge.ContentRecord
		status, method           string
		meta, targets, autoDests string
		lastAuto, archivedAt     sql.NullString
		createdAt, updatedAt     string
	)
	err := row.Scan(&rec.ID, &rec.UserID, &rec.ConnectionID, &rec.SourcePlatform, &rec.SourceAccountID, &rec.SourcePostID,
		&rec.SourceURL, &rec.OriginalMediaURL, &rec.Media.LocalPath, &rec.Media.Checksum, &rec.Media.FileSize, &rec.Media.Format,
		&meta, &status, &rec.Priority, &method, &targets, &rec.AutoSync.Enabled, &autoDests, &lastAuto,
		&rec.IsArchived, &archivedAt, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	rec.Status = bridge.Status(status)
	rec.ImportMethod = bridge.ImportMethod(method)
	if err := json.Unmarshal([]byte(meta), &rec.Metadata); err != nil {
		return nil, fmt.Errorf("decoding metadata for %s: %w", rec.ID, err)
	}
	if rec.Targets, err = decodeList(targets); err != nil {
		return nil, err
	}
	if rec.AutoSync.Destinations, err = decodeList(autoDests); err != nil {
		return nil, err
	}
	if rec.AutoSync.LastAutoSyncAt, err = parseNullTime(lastAuto); err != nil {
		return nil, err
	}
	if rec.ArchivedAt, err = parseNullTime(archivedAt); err != nil {
		return nil, err
	}
	if rec.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	if rec.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, err
	}
	return &rec, nil
}

func scanConnection(row scanner) (*bridge.Connection, error) {
	var (
		c               bridge.Connection
		expiry, checked sql.NullString
		createdAt       string
		autoDests       string
	)
	err := row.Scan(&c.ID, &c.UserID, &c.Platform, &c.AccountID, &c.AccountHandle, &c.AccessToken,
		&c.RefreshToken, &expiry, &c.IsActive, &createdAt, &c.AutoSync, &autoDests, &checked)
	if err != nil {
		return nil, err
	}
	if c.TokenExpiry, err = parseNullTime(expiry); err != nil {
		return nil, err
	}
	if c.LastCheckedAt, err = parseNullTime(checked); err != nil {
		return nil, err
	}
	if c.AutoSyncDestinations, err = decodeList(autoDests); err != nil {
		return nil, err
	}
	if c.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, err
	}
	return &c, nil
}

// Helpers

func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("starting transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing transaction: %w", err)
	}
	return nil
}

func affectedOne(res sql.Result) (bool, error) {
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("reading rows affected: %w", err)
	}
	return n == 1, nil
}

func requireOne(res sql.Result, id string) error {
	ok, err := affectedOne(res)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("content %s: %w", id, bridge.ErrNotFound)
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var se sqlite3.Error
	if errors.As(err, &se) {
		return se.ExtendedCode == sqlite3.ErrConstraintUnique || se.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
	}
	return false
}

func limitOrAll(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

func encodeList(items []string) string {
	if len(items) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(items)
	return string(b)
}

func decodeList(raw string) ([]string, error) {
	if raw == "" || raw == "[]" {
		return nil, nil
	}
	var items []string
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, fmt.Errorf("decoding list %q: %w", raw, err)
	}
	return items, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(timeFormat, s)
	if err != nil {
		// Accept RFC 3339 from hand-edited rows.
		if t2, err2 := time.Parse(time.RFC3339Nano, s); err2 == nil {
			return t2.UTC(), nil
		}
		return time.Time{}, fmt.Errorf("parsing time %q: %w", s, err)
	}
	return t, nil
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := parseTime(ns.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
