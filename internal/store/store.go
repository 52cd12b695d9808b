package store

import (
	"context"
	"crypto/subtle"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3" // SQLite3 driver
	"github.com/segmentio/ksuid"

	"filedl/internal/logging"
	"filedl/internal/metrics"
)

// Default timeout for registry queries.
const defaultTimeout = 5 * time.Second

// Store is the SQLite-backed object registry.
type Store struct {
	db     *sql.DB
	dbPath string
}

// New opens (or creates) the registry database at dbPath. The parent
// directory must already exist and be writable.
func New(ctx context.Context, dbPath string) (*Store, error) {
	logging.Info("Object registry path: %s", dbPath)

	if err := checkDirWritable(filepath.Dir(dbPath)); err != nil {
		return nil, fmt.Errorf("registry directory: %w", err)
	}

	// WAL mode plus busy_timeout keeps concurrent readers from tripping
	// over "database is locked".
	connStr := fmt.Sprintf("%s?_journal_mode=WAL&_synchronous=NORMAL&_cache_size=10000&_temp_store=MEMORY&_busy_timeout=5000", dbPath)

	db, err := sql.Open("sqlite3", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open registry database: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close registry after ping failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to connect to registry database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(time.Hour)

	s := &Store{db: db, dbPath: dbPath}
	if err := s.initialize(ctx); err != nil {
		if closeErr := db.Close(); closeErr != nil {
			logging.Error("failed to close registry after init failure: %v", closeErr)
		}
		return nil, fmt.Errorf("failed to initialize registry schema: %w", err)
	}

	s.refreshObjectGauge(ctx)
	logging.Info("Object registry initialized at %s", dbPath)
	return s, nil
}

func checkDirWritable(dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return err
	}
	probe := filepath.Join(dir, ".perm-test")
	if err := os.WriteFile(probe, []byte("test"), 0o600); err != nil {
		return fmt.Errorf("not writable: %w", err)
	}
	_ = os.Remove(probe)
	return nil
}

func (s *Store) initialize(ctx context.Context) error {
	schema := `
	CREATE TABLE IF NOT EXISTS objects (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		ownership TEXT NOT NULL CHECK (ownership IN ('owned', 'linked')),
		linked_path TEXT NOT NULL DEFAULT '',
		unlisted_key TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL DEFAULT (strftime('%s', 'now')),
		expires_at INTEGER
	);

	CREATE INDEX IF NOT EXISTS idx_objects_expires ON objects(expires_at);
	CREATE INDEX IF NOT EXISTS idx_objects_name ON objects(name COLLATE NOCASE);
	`
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// Close closes the registry database.
func (s *Store) Close() error {
	return s.db.Close()
}

// Put registers a new object. An empty ID gets a generated one; the
// finished record is returned.
func (s *Store) Put(ctx context.Context, obj Object) (Object, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("put", start, err) }()

	if obj.Name == "" {
		err = fmt.Errorf("%w: name is required", ErrInvalidObject)
		return Object{}, err
	}
	if !obj.Ownership.Valid() {
		err = fmt.Errorf("%w: unknown ownership %q", ErrInvalidObject, obj.Ownership)
		return Object{}, err
	}
	if obj.Ownership == OwnershipLinked {
		cleaned := filepath.Clean(obj.LinkedPath)
		if obj.LinkedPath == "" || filepath.IsAbs(cleaned) ||
			cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
			err = fmt.Errorf("%w: linked path must stay under the linked root, got %q", ErrInvalidObject, obj.LinkedPath)
			return Object{}, err
		}
		obj.LinkedPath = cleaned
	} else if obj.LinkedPath != "" {
		err = fmt.Errorf("%w: owned objects cannot carry a linked path", ErrInvalidObject)
		return Object{}, err
	}

	if obj.ID == "" {
		obj.ID = ksuid.New().String()
	}
	obj.CreatedAt = time.Now().UTC().Truncate(time.Second)

	var expires sql.NullInt64
	if obj.ExpiresAt != nil {
		expires = sql.NullInt64{Int64: obj.ExpiresAt.Unix(), Valid: true}
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO objects (id, name, ownership, linked_path, unlisted_key, created_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		obj.ID, obj.Name, string(obj.Ownership), obj.LinkedPath, obj.UnlistedKey,
		obj.CreatedAt.Unix(), expires,
	)
	if err != nil {
		return Object{}, fmt.Errorf("failed to register object: %w", err)
	}

	s.refreshObjectGauge(context.Background())
	logging.Info("Registered %s object %s (%q)", obj.Ownership, obj.ID, obj.Name)
	return obj, nil
}

// Get returns the object with the given ID, expired or not. Use Resolve
// on the serving path.
func (s *Store) Get(ctx context.Context, id string) (Object, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("get", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, ownership, linked_path, unlisted_key, created_at, expires_at
		FROM objects WHERE id = ?`, id)

	obj, scanErr := scanObject(row)
	if scanErr != nil {
		if errors.Is(scanErr, sql.ErrNoRows) {
			err = ErrNotFound
			return Object{}, err
		}
		err = scanErr
		return Object{}, err
	}
	return obj, nil
}

// Resolve is the serving-path lookup: unknown and expired objects both
// come back ErrNotFound, and unlisted objects require the matching key.
func (s *Store) Resolve(ctx context.Context, id, key string) (Object, error) {
	obj, err := s.Get(ctx, id)
	if err != nil {
		return Object{}, err
	}
	if obj.Expired(time.Now()) {
		return Object{}, ErrNotFound
	}
	if obj.Unlisted() {
		if subtle.ConstantTimeCompare([]byte(key), []byte(obj.UnlistedKey)) != 1 {
			return Object{}, ErrForbidden
		}
	}
	return obj, nil
}

// List returns all listed, unexpired objects sorted by name. With
// includeHidden it also returns unlisted and expired objects, which the
// admin tooling needs.
func (s *Store) List(ctx context.Context, includeHidden bool) ([]Object, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("list", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	query := `
		SELECT id, name, ownership, linked_path, unlisted_key, created_at, expires_at
		FROM objects`
	args := []any{}
	if !includeHidden {
		query += ` WHERE unlisted_key = '' AND (expires_at IS NULL OR expires_at > ?)`
		args = append(args, time.Now().Unix())
	}
	query += ` ORDER BY name COLLATE NOCASE`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list objects: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			logging.Error("failed to close object rows: %v", closeErr)
		}
	}()

	var objects []Object
	for rows.Next() {
		obj, scanErr := scanObject(rows)
		if scanErr != nil {
			err = scanErr
			return nil, err
		}
		objects = append(objects, obj)
	}
	err = rows.Err()
	if err != nil {
		return nil, err
	}
	return objects, nil
}

// Remove deletes an object from the registry. The caller is responsible
// for the files of owned objects.
func (s *Store) Remove(ctx context.Context, id string) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("remove", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `DELETE FROM objects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to remove object: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		err = ErrNotFound
		return err
	}

	s.refreshObjectGauge(context.Background())
	logging.Info("Removed object %s", id)
	return nil
}

// SetExpiry updates an object's expiry. A nil expires makes it permanent.
func (s *Store) SetExpiry(ctx context.Context, id string, expires *time.Time) error {
	start := time.Now()
	var err error
	defer func() { recordQuery("set_expiry", start, err) }()

	var value sql.NullInt64
	if expires != nil {
		value = sql.NullInt64{Int64: expires.Unix(), Valid: true}
	}

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx, `UPDATE objects SET expires_at = ? WHERE id = ?`, value, id)
	if err != nil {
		return fmt.Errorf("failed to update expiry: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		err = ErrNotFound
		return err
	}
	return nil
}

// PruneExpired deletes objects whose expiry has passed and returns how
// many went away.
func (s *Store) PruneExpired(ctx context.Context) (int64, error) {
	start := time.Now()
	var err error
	defer func() { recordQuery("prune_expired", start, err) }()

	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	result, err := s.db.ExecContext(ctx,
		`DELETE FROM objects WHERE expires_at IS NOT NULL AND expires_at <= ?`,
		time.Now().Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to prune expired objects: %w", err)
	}
	pruned, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if pruned > 0 {
		logging.Info("Pruned %d expired objects", pruned)
		s.refreshObjectGauge(context.Background())
	}
	return pruned, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanObject(row rowScanner) (Object, error) {
	var (
		obj       Object
		ownership string
		created   int64
		expires   sql.NullInt64
	)
	err := row.Scan(&obj.ID, &obj.Name, &ownership, &obj.LinkedPath,
		&obj.UnlistedKey, &created, &expires)
	if err != nil {
		return Object{}, err
	}
	obj.Ownership = Ownership(ownership)
	obj.CreatedAt = time.Unix(created, 0).UTC()
	if expires.Valid {
		t := time.Unix(expires.Int64, 0).UTC()
		obj.ExpiresAt = &t
	}
	return obj, nil
}

func (s *Store) refreshObjectGauge(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, defaultTimeout)
	defer cancel()

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM objects`).Scan(&count); err != nil {
		logging.Debug("failed to count objects for metrics: %v", err)
		return
	}
	metrics.StoreObjectsTotal.Set(float64(count))
}

func recordQuery(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	metrics.StoreQueriesTotal.WithLabelValues(operation, status).Inc()
	metrics.StoreQueryDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
}
