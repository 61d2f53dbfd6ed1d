package users

import (
	"context"
	"errors"

	"github.com/MrEthical07/phoneauth"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

const uniqueViolation = "23505"

// Schema creates the users table. Profile columns are owned elsewhere.
const Schema = `
CREATE TABLE IF NOT EXISTS users (
	id            TEXT        PRIMARY KEY,
	phone_number  TEXT        NOT NULL UNIQUE,
	password_hash TEXT        NOT NULL DEFAULT '',
	role          TEXT        NOT NULL,
	state         TEXT        NOT NULL DEFAULT 'active',
	created_at    TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

const selectUser = "SELECT id, phone_number, password_hash, role, state FROM users"

// PostgresStore reads and creates users over a pgx pool. The caller owns the
// pool.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

// Migrate applies [Schema].
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, Schema)
	return err
}

func (s *PostgresStore) CreateUser(ctx context.Context, u phoneauth.UserRecord) (phoneauth.UserRecord, error) {
	if u.UserID == "" {
		u.UserID = uuid.NewString()
	}
	_, err := s.pool.Exec(ctx,
		"INSERT INTO users (id, phone_number, password_hash, role, state) VALUES ($1, $2, $3, $4, $5)",
		u.UserID, u.Phone, u.PasswordHash, u.Role, u.State)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return phoneauth.UserRecord{}, phoneauth.ErrUserExists
	}
	if err != nil {
		return phoneauth.UserRecord{}, err
	}
	return u, nil
}

func (s *PostgresStore) GetUserByPhone(ctx context.Context, phone string) (phoneauth.UserRecord, error) {
	return s.getOne(ctx, selectUser+" WHERE phone_number = $1", phone)
}

func (s *PostgresStore) GetUserByID(ctx context.Context, userID string) (phoneauth.UserRecord, error) {
	return s.getOne(ctx, selectUser+" WHERE id = $1", userID)
}

func (s *PostgresStore) getOne(ctx context.Context, query, arg string) (phoneauth.UserRecord, error) {
	var u phoneauth.UserRecord
	err := s.pool.QueryRow(ctx, query, arg).Scan(&u.UserID, &u.Phone, &u.PasswordHash, &u.Role, &u.State)
	if errors.Is(err, pgx.ErrNoRows) {
		return phoneauth.UserRecord{}, phoneauth.ErrUserNotFound
	}
	return u, err
}
