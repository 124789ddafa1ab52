package store

import (
	"context"
	"database/sql"
	"time"

	"github.com/cockroachdb/errors"
)

// ErrUserNotFound is returned when no user matches a lookup.
var ErrUserNotFound = errors.New("store: user not found")

// ErrUserExists is returned by CreateUser when the username is already
// registered.
var ErrUserExists = errors.New("store: username already registered")

// CreateUser registers a new user. username is stored encrypted, with a
// keyed blind index used for lookups; passwordHash must already be a
// bcrypt digest.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string, roleID int64) (int64, error) {
	hash := s.key.BlindIndex([]byte(username))

	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM users WHERE username_hash = ?;`, hash).Scan(&exists)
	if err == nil {
		return 0, ErrUserExists
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return 0, errors.Wrap(err, "store: check existing username")
	}

	encryptedUsername, err := s.key.Encrypt([]byte(username), nowUnix())
	if err != nil {
		return 0, errors.Wrap(err, "store: encrypt username")
	}

	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, username_hash, password_hash, role_id) VALUES (?, ?, ?, ?);`,
		encryptedUsername, hash, passwordHash, roleID)
	if err != nil {
		return 0, errors.Wrap(err, "store: insert user")
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, errors.Wrap(err, "store: read inserted user id")
	}
	return id, s.Persist()
}

// GetUserByUsername looks up a user by its blind index, decrypting the
// stored username on return.
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	hash := s.key.BlindIndex([]byte(username))

	var (
		id                int64
		encryptedUsername string
		passwordHash      string
		roleID            int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT id, username, password_hash, role_id FROM users WHERE username_hash = ?;`, hash).
		Scan(&id, &encryptedUsername, &passwordHash, &roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: query user by username")
	}

	plaintext, err := s.key.Decrypt(encryptedUsername)
	if err != nil {
		return nil, errors.Wrap(err, "store: decrypt username")
	}

	return &User{ID: id, Username: string(plaintext), PasswordHash: passwordHash, RoleID: roleID}, nil
}

// GetUserByID looks up a user by primary key.
func (s *Store) GetUserByID(ctx context.Context, id int64) (*User, error) {
	var (
		encryptedUsername string
		passwordHash      string
		roleID            int64
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT username, password_hash, role_id FROM users WHERE id = ?;`, id).
		Scan(&encryptedUsername, &passwordHash, &roleID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "store: query user by id")
	}

	plaintext, err := s.key.Decrypt(encryptedUsername)
	if err != nil {
		return nil, errors.Wrap(err, "store: decrypt username")
	}

	return &User{ID: id, Username: string(plaintext), PasswordHash: passwordHash, RoleID: roleID}, nil
}

func nowUnix() int64 {
	return time.Now().Unix()
}
