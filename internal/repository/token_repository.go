package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/vaidashi/invoice-reconciler/internal/database"
	"github.com/vaidashi/invoice-reconciler/internal/models"
	"github.com/vaidashi/invoice-reconciler/pkg/logger"
)

// TokenRepository persists the accounting API's rotated refresh token
// between runs
type TokenRepository struct {
	db     *database.Database
	logger logger.Logger
}

// NewTokenRepository creates a new TokenRepository
func NewTokenRepository(db *database.Database, logger logger.Logger) *TokenRepository {
	return &TokenRepository{
		db:     db,
		logger: logger,
	}
}

// GetRefreshToken returns the stored refresh token
func (r *TokenRepository) GetRefreshToken(ctx context.Context) (string, error) {
	query := `SELECT refresh_token FROM books_tokens WHERE id = 1`

	var token string
	err := r.db.DB.GetContext(ctx, &token, query)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrNotFound
		}
		r.logger.Error("Failed to get refresh token", "error", err)
		return "", fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return token, nil
}

// UpdateRefreshToken stores a rotated refresh token
func (r *TokenRepository) UpdateRefreshToken(ctx context.Context, token string) error {
	query := `
		INSERT INTO books_tokens (id, refresh_token, updated_at)
		VALUES (1, $1, $2)
		ON CONFLICT (id) DO UPDATE SET refresh_token = $1, updated_at = $2
	`

	_, err := r.db.DB.ExecContext(ctx, query, token, models.GetCurrentTime())

	if err != nil {
		r.logger.Error("Failed to update refresh token", "error", err)
		return fmt.Errorf("%w: %v", ErrDatabase, err)
	}

	return nil
}
