package rbac

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneauth/permission"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Schema creates the two tables the store reads. Business columns of events
// are owned elsewhere; only id and organizer_id are required here.
const Schema = `
CREATE TABLE IF NOT EXISTS events (
	id           TEXT PRIMARY KEY,
	organizer_id TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS event_organizers (
	event_id           TEXT        NOT NULL REFERENCES events(id) ON DELETE CASCADE,
	user_id            TEXT        NOT NULL,
	role               TEXT        NOT NULL,
	custom_permissions BIGINT      NOT NULL DEFAULT 0,
	created_at         TIMESTAMPTZ NOT NULL DEFAULT now(),
	UNIQUE (event_id, user_id)
);
`

// PostgresStore is a [Store] over a pgx connection pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// NewPostgresStore connects to databaseURL and verifies the connection.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &PostgresStore{pool: pool}, nil
}

// NewPostgresStoreFromPool wraps an existing pool. The caller keeps ownership.
func NewPostgresStoreFromPool(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) Close() {
	s.pool.Close()
}

// Migrate applies [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

func (s *PostgresStore) IsOwner(ctx context.Context, userID, resourceID string) (bool, error) {
	var owner bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS (SELECT 1 FROM events WHERE id = $1 AND organizer_id = $2)",
		resourceID, userID).Scan(&owner)
	return owner, err
}

func (s *PostgresStore) GetAssignment(ctx context.Context, resourceID, userID string) (Assignment, bool, error) {
	var (
		role   string
		custom int64
		a      = Assignment{ResourceID: resourceID, UserID: userID}
	)
	err := s.pool.QueryRow(ctx,
		"SELECT role, custom_permissions, created_at FROM event_organizers WHERE event_id = $1 AND user_id = $2",
		resourceID, userID).Scan(&role, &custom, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Assignment{}, false, nil
	}
	if err != nil {
		return Assignment{}, false, err
	}

	a.Role = permission.Role(role)
	// Unknown bits from older rows are dropped rather than failing the check.
	a.Custom = permission.Set(uint64(custom)) & permission.FullSet()
	return a, true, nil
}

func (s *PostgresStore) CreateAssignment(ctx context.Context, a Assignment) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO event_organizers (event_id, user_id, role, custom_permissions) VALUES ($1, $2, $3, $4)",
		a.ResourceID, a.UserID, string(a.Role), int64(a.Custom.Raw()))
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return ErrConflict
	}
	return err
}

func (s *PostgresStore) DeleteAssignment(ctx context.Context, resourceID, userID string) error {
	tag, err := s.pool.Exec(ctx,
		"DELETE FROM event_organizers WHERE event_id = $1 AND user_id = $2",
		resourceID, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// CreateEvent inserts an ownership row. Used by fixtures and the development binary.
func (s *PostgresStore) CreateEvent(ctx context.Context, resourceID, organizerID string) error {
	_, err := s.pool.Exec(ctx,
		"INSERT INTO events (id, organizer_id) VALUES ($1, $2) ON CONFLICT (id) DO NOTHING",
		resourceID, organizerID)
	return err
}
