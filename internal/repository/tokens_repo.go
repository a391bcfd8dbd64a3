package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/veritoken/veritoken/pkg/domain"
)

// TokensRepository persists verification tokens in SQL. Rows carry an opaque
// record id separate from the token's persisted id; timestamps are stored as
// unix seconds so the same queries run on postgres and sqlite.
type TokensRepository struct {
	db     *sql.DB
	driver string
}

// NewTokensRepository creates a tokens repository. Driver is "postgres" or
// "sqlite" and must match the driver the *sql.DB was opened with.
func NewTokensRepository(db *sql.DB, driver string) *TokensRepository {
	return &TokensRepository{db: db, driver: driver}
}

// Create persists a new token record.
func (r *TokensRepository) Create(ctx context.Context, token *domain.Token) error {
	metadata, err := marshalMetadata(token.Metadata)
	if err != nil {
		return err
	}

	query := rebind(r.driver, `
		INSERT INTO verification_tokens (record_id, token_id, type, user_id, secret_hash, metadata, issued_at, expires_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`)
	_, err = r.db.ExecContext(ctx, query,
		uuid.New().String(), token.ID, token.Type, token.UserID,
		token.SecretHash, metadata, token.IssuedAt.Unix(), token.ExpiresAt.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to create verification token: %w", err)
	}
	return nil
}

// FindByID retrieves the token with the given persisted id and type.
func (r *TokensRepository) FindByID(ctx context.Context, id, typ string) (*domain.Token, error) {
	query := `
		SELECT token_id, type, user_id, secret_hash, metadata, issued_at, expires_at
		FROM verification_tokens
		WHERE token_id = ? AND type = ?
	`
	return r.findOne(ctx, query, id, typ)
}

// FindByUser retrieves the newest token for (type, user) regardless of expiry.
func (r *TokensRepository) FindByUser(ctx context.Context, typ, userID string) (*domain.Token, error) {
	query := `
		SELECT token_id, type, user_id, secret_hash, metadata, issued_at, expires_at
		FROM verification_tokens
		WHERE type = ? AND user_id = ?
		ORDER BY issued_at DESC
		LIMIT 1
	`
	return r.findOne(ctx, query, typ, userID)
}

// FindLive retrieves the newest token for (type, user) whose expiry is at or
// after now.
func (r *TokensRepository) FindLive(ctx context.Context, typ, userID string, now time.Time) (*domain.Token, error) {
	query := `
		SELECT token_id, type, user_id, secret_hash, metadata, issued_at, expires_at
		FROM verification_tokens
		WHERE type = ? AND user_id = ? AND expires_at >= ?
		ORDER BY issued_at DESC
		LIMIT 1
	`
	return r.findOne(ctx, query, typ, userID, now.Unix())
}

// DeleteByID deletes the token with the given persisted id and type.
func (r *TokensRepository) DeleteByID(ctx context.Context, id, typ string) error {
	query := rebind(r.driver, `DELETE FROM verification_tokens WHERE token_id = ? AND type = ?`)
	if _, err := r.db.ExecContext(ctx, query, id, typ); err != nil {
		return fmt.Errorf("failed to delete verification token: %w", err)
	}
	return nil
}

// DeleteByUser deletes all tokens for (type, user).
func (r *TokensRepository) DeleteByUser(ctx context.Context, typ, userID string) error {
	query := rebind(r.driver, `DELETE FROM verification_tokens WHERE type = ? AND user_id = ?`)
	if _, err := r.db.ExecContext(ctx, query, typ, userID); err != nil {
		return fmt.Errorf("failed to delete verification tokens: %w", err)
	}
	return nil
}

// DeleteExpired deletes all tokens whose expiry is strictly before now and
// returns how many were removed.
func (r *TokensRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	query := rebind(r.driver, `DELETE FROM verification_tokens WHERE expires_at < ?`)
	result, err := r.db.ExecContext(ctx, query, now.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired verification tokens: %w", err)
	}
	return result.RowsAffected()
}

// CountByUser counts tokens for (type, user).
func (r *TokensRepository) CountByUser(ctx context.Context, typ, userID string) (int64, error) {
	query := rebind(r.driver, `SELECT COUNT(*) FROM verification_tokens WHERE type = ? AND user_id = ?`)
	var count int64
	if err := r.db.QueryRowContext(ctx, query, typ, userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count verification tokens: %w", err)
	}
	return count, nil
}

func (r *TokensRepository) findOne(ctx context.Context, query string, args ...any) (*domain.Token, error) {
	var (
		token     domain.Token
		secret    sql.NullString
		metadata  sql.NullString
		issuedAt  int64
		expiresAt int64
	)
	err := r.db.QueryRowContext(ctx, rebind(r.driver, query), args...).Scan(
		&token.ID, &token.Type, &token.UserID, &secret, &metadata, &issuedAt, &expiresAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrTokenNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query verification token: %w", err)
	}

	token.SecretHash = secret.String
	token.IssuedAt = time.Unix(issuedAt, 0).UTC()
	token.ExpiresAt = time.Unix(expiresAt, 0).UTC()

	if metadata.Valid && metadata.String != "" {
		if err := json.Unmarshal([]byte(metadata.String), &token.Metadata); err != nil {
			return nil, fmt.Errorf("failed to decode token metadata: %w", err)
		}
	}
	return &token, nil
}

func marshalMetadata(metadata map[string]string) (sql.NullString, error) {
	if len(metadata) == 0 {
		return sql.NullString{}, nil
	}
	b, err := json.Marshal(metadata)
	if err != nil {
		return sql.NullString{}, fmt.Errorf("failed to encode token metadata: %w", err)
	}
	return sql.NullString{String: string(b), Valid: true}, nil
}
