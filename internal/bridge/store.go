package bridge

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nerrad567/lumen-core/internal/infrastructure/database"
)

// Store persists paired-bridge credentials in SQLite so the core resumes
// an authenticated session across restarts without rediscovery. It is the
// default implementation of the credential persistence boundary; the
// gateway client itself never decides storage medium or location.
type Store struct {
	db     *database.DB
	logger Logger
}

// NewStore creates a credential store backed by the given database.
func NewStore(db *database.DB) *Store {
	return &Store{db: db, logger: noopLogger{}}
}

// SetLogger sets the logger for the store.
func (s *Store) SetLogger(logger Logger) {
	s.logger = logger
}

// Save inserts or replaces the credentials for a bridge.
//
// Parameters:
//   - ctx: Operation context
//   - creds: Complete bridge identity and keys
//
// Returns:
//   - error: Validation or database failure
func (s *Store) Save(ctx context.Context, creds Credentials) error {
	if creds.BridgeID == "" || creds.ApplicationKey == "" {
		return fmt.Errorf("%w: bridge id and application key required", ErrNoCredentials)
	}

	pairedAt := creds.PairedAt
	if pairedAt.IsZero() {
		pairedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO paired_bridges (id, address, port, name, model, app_key, client_key, paired_at, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			address = excluded.address,
			port = excluded.port,
			name = excluded.name,
			model = excluded.model,
			app_key = excluded.app_key,
			client_key = excluded.client_key,
			last_seen = excluded.last_seen`,
		creds.BridgeID, creds.Address, creds.Port, creds.Name, creds.Model,
		creds.ApplicationKey, creds.ClientKey,
		pairedAt.Format(time.RFC3339Nano), time.Now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("bridge: saving credentials: %w", err)
	}

	s.logger.Info("credentials saved", "bridge", creds.BridgeID)
	return nil
}

// Load returns the most recently seen paired bridge, or ErrNoCredentials
// when none has ever been paired.
func (s *Store) Load(ctx context.Context) (Credentials, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, address, port, name, model, app_key, client_key, paired_at
		FROM paired_bridges
		ORDER BY last_seen DESC
		LIMIT 1`)
	return scanCredentials(row)
}

// Get returns the credentials for one bridge id.
func (s *Store) Get(ctx context.Context, bridgeID string) (Credentials, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, address, port, name, model, app_key, client_key, paired_at
		FROM paired_bridges
		WHERE id = ?`, bridgeID)
	return scanCredentials(row)
}

// List returns all paired bridges, most recently seen first.
func (s *Store) List(ctx context.Context) ([]Credentials, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, address, port, name, model, app_key, client_key, paired_at
		FROM paired_bridges
		ORDER BY last_seen DESC`)
	if err != nil {
		return nil, fmt.Errorf("bridge: listing credentials: %w", err)
	}
	defer rows.Close()

	var all []Credentials
	for rows.Next() {
		creds, err := scanCredentials(rows)
		if err != nil {
			return nil, err
		}
		all = append(all, creds)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("bridge: listing credentials: %w", err)
	}
	return all, nil
}

// Delete removes the credentials for a bridge. Deleting an unknown id is
// not an error.
func (s *Store) Delete(ctx context.Context, bridgeID string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM paired_bridges WHERE id = ?`, bridgeID); err != nil {
		return fmt.Errorf("bridge: deleting credentials: %w", err)
	}
	return nil
}

// TouchLastSeen records that the bridge answered recently, keeping Load's
// most-recently-seen ordering accurate.
func (s *Store) TouchLastSeen(ctx context.Context, bridgeID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE paired_bridges SET last_seen = ? WHERE id = ?`,
		time.Now().UTC().Format(time.RFC3339Nano), bridgeID)
	if err != nil {
		return fmt.Errorf("bridge: updating last seen: %w", err)
	}
	return nil
}

// rowScanner covers *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanCredentials(row rowScanner) (Credentials, error) {
	var creds Credentials
	var pairedAt string
	err := row.Scan(&creds.BridgeID, &creds.Address, &creds.Port, &creds.Name,
		&creds.Model, &creds.ApplicationKey, &creds.ClientKey, &pairedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Credentials{}, ErrNoCredentials
	}
	if err != nil {
		return Credentials{}, fmt.Errorf("bridge: reading credentials: %w", err)
	}
	if t, err := time.Parse(time.RFC3339Nano, pairedAt); err == nil {
		creds.PairedAt = t
	}
	return creds, nil
}
