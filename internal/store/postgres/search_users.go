package postgres

import (
	"context"
	"fmt"
	"strings"

	"ReadyCheckserver/internal/domain"

	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UserSearchStore struct {
	pool *pgxpool.Pool
}

func NewUserSearchStore(pool *pgxpool.Pool) *UserSearchStore {
	return &UserSearchStore{pool: pool}
}

func (s *UserSearchStore) SearchUsers(ctx context.Context, q string, limit int, excludeUserID string) ([]domain.FriendSummary, error) {
	if limit <= 0 || limit > 50 {
		limit = 20
	}

	q = strings.TrimSpace(q)
	if q == "" {
		return []domain.FriendSummary{}, nil
	}

	like := "%" + q + "%"
	const query = `
		SELECT id, username, display_name, avatar_url
		FROM users
		WHERE status = 'active'
		  AND id <> $3
		  AND (username ILIKE $1 OR display_name ILIKE $1 OR email ILIKE $1)
		ORDER BY username ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, like, limit, excludeUserID)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	defer rows.Close()

	var out []domain.FriendSummary
	for rows.Next() {
		var (
			idUUID      pgtype.UUID
			username    string
			displayName pgtype.Text
			avatarURL   pgtype.Text
		)
		if err := rows.Scan(&idUUID, &username, &displayName, &avatarURL); err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, domain.FriendSummary{
			ID:          uuidOrEmpty(idUUID),
			Username:    username,
			DisplayName: textOrEmpty(displayName),
			AvatarURL:   textOrEmpty(avatarURL),
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}

	return out, nil
}
