package repository

import (
	"context"
	"database/sql"
	"errors"

	"meterbridge/internal/cloud"
)

type TokenSQLite struct {
	db *sql.DB
}

func NewTokenSQLite(db *sql.DB) *TokenSQLite {
	return &TokenSQLite{db: db}
}

var _ TokenRepo = (*TokenSQLite)(nil)

// The token store is a single row; the account has exactly one token pair.
const (
	tokenRowID = 1

	upsertTokenSQL = `
		INSERT INTO cloud_tokens (id, access_token, refresh_token, expires_in, expires_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			access_token=excluded.access_token,
			refresh_token=excluded.refresh_token,
			expires_in=excluded.expires_in,
			expires_at=excluded.expires_at
	`

	selectTokenSQL = `
		SELECT access_token, refresh_token, expires_in, expires_at
		FROM cloud_tokens WHERE id=?
	`
)

// Save upserts the persisted token pair.
func (r *TokenSQLite) Save(ctx context.Context, tok cloud.Token) error {
	_, err := r.db.ExecContext(ctx, upsertTokenSQL,
		tokenRowID,
		tok.AccessToken,
		tok.RefreshToken,
		tok.ExpiresIn,
		tok.ExpiresAt,
	)
	return err
}

// Load returns the persisted token pair, or nil when none exists yet.
func (r *TokenSQLite) Load(ctx context.Context) (*cloud.Token, error) {
	row := r.db.QueryRowContext(ctx, selectTokenSQL, tokenRowID)

	var tok cloud.Token
	if err := row.Scan(&tok.AccessToken, &tok.RefreshToken, &tok.ExpiresIn, &tok.ExpiresAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &tok, nil
}
