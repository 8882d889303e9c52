package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrBadCredentials = errors.New("store: invalid username or password")
	ErrUserExists     = errors.New("store: username or email already registered")
	ErrUserNotFound   = errors.New("store: user not found")
)

// User is the account record backing LOGIN and REGISTER.
type User struct {
	ID          uint64
	Username    string
	Email       string
	DisplayName string
	AvatarURL   string
	CreatedAt   time.Time
}

// CreateUser registers an account, hashing the password with bcrypt.
// Duplicate username or email returns ErrUserExists.
func (d *DB) CreateUser(ctx context.Context, username, email, password, displayName string) (*User, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := time.Now()
	res, err := d.conn.ExecContext(ctx,
		`INSERT INTO users (username, email, password_hash, display_name, created_at) VALUES (?, ?, ?, ?, ?)`,
		username, email, string(hash), displayName, now.Unix())
	if err != nil {
		// sqlite reports unique violations as a generic error; the unique
		// indexes on username/email are the only constraints here.
		return nil, ErrUserExists
	}

	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}
	return &User{
		ID:          uint64(id),
		Username:    username,
		Email:       email,
		DisplayName: displayName,
		CreatedAt:   now,
	}, nil
}

// VerifyCredentials authenticates by username or email. A miss and a bad
// password are indistinguishable to the caller (ErrBadCredentials), so a
// login probe can't enumerate accounts.
func (d *DB) VerifyCredentials(ctx context.Context, usernameOrEmail, password string) (*User, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, username, email, password_hash, display_name, avatar_url, created_at
		 FROM users WHERE username = ? OR email = ?`,
		usernameOrEmail, usernameOrEmail)

	var u User
	var hash string
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &hash, &u.DisplayName, &u.AvatarURL, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBadCredentials
		}
		return nil, fmt.Errorf("query user: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) != nil {
		return nil, ErrBadCredentials
	}

	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}

// GetUserByName resolves a username to its account record, used by the
// send-message path to find the receiver.
func (d *DB) GetUserByName(ctx context.Context, username string) (*User, error) {
	row := d.conn.QueryRowContext(ctx,
		`SELECT id, username, email, display_name, avatar_url, created_at FROM users WHERE username = ?`,
		username)

	var u User
	var createdAt int64
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &u.DisplayName, &u.AvatarURL, &createdAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("query user: %w", err)
	}
	u.CreatedAt = time.Unix(createdAt, 0)
	return &u, nil
}
