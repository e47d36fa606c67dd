package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"ReadyCheckserver/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type UsersStore struct {
	pool *pgxpool.Pool
}

func NewUsersStore(pool *pgxpool.Pool) *UsersStore {
	return &UsersStore{pool: pool}
}

const userColumns = `
	id, email, username, display_name, avatar_url, status, push_token,
	friends::text[], friend_requests::text[], created_at, updated_at, last_login_at
`

func scanUser(row pgx.Row) (domain.User, error) {
	var (
		u           domain.User
		idUUID      pgtype.UUID
		emailText   pgtype.Text
		displayText pgtype.Text
		avatarText  pgtype.Text
		pushText    pgtype.Text
		friends     pgtype.FlatArray[string]
		requests    pgtype.FlatArray[string]
		lastLoginTS pgtype.Timestamptz
	)
	err := row.Scan(
		&idUUID,
		&emailText,
		&u.Username,
		&displayText,
		&avatarText,
		&u.Status,
		&pushText,
		&friends,
		&requests,
		&u.CreatedAt,
		&u.UpdatedAt,
		&lastLoginTS,
	)
	if err != nil {
		return domain.User{}, err
	}

	u.ID = uuidOrEmpty(idUUID)
	u.Email = textOrEmpty(emailText)
	u.DisplayName = textOrEmpty(displayText)
	u.AvatarURL = textOrEmpty(avatarText)
	u.PushToken = textOrEmpty(pushText)
	u.Friends = textArrayOrEmpty(friends)
	u.FriendRequests = textArrayOrEmpty(requests)
	u.LastLoginAt = timestamptzPtr(lastLoginTS)
	return u, nil
}

func (s *UsersStore) CreateUser(ctx context.Context, email, username, passwordHash string) (domain.User, error) {
	q := `
		INSERT INTO users (email, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING` + userColumns

	u, err := scanUser(s.pool.QueryRow(ctx, q, nullIfEmpty(email), username, passwordHash))
	if err != nil {
		return domain.User{}, mapUserWriteError(err)
	}
	return u, nil
}

func (s *UsersStore) GetUserByID(ctx context.Context, id string) (domain.User, error) {
	q := `SELECT` + userColumns + `FROM users WHERE id = $1`

	u, err := scanUser(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrNotFound
		}
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return u, nil
}

func (s *UsersStore) GetUsersByIDs(ctx context.Context, ids []string) ([]domain.User, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	q := `SELECT` + userColumns + `FROM users WHERE id = ANY($1::uuid[])`

	rows, err := s.pool.Query(ctx, q, ids)
	if err != nil {
		return nil, fmt.Errorf("get users by ids: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("get users by ids: %w", err)
	}
	return out, nil
}

func (s *UsersStore) GetUserByLogin(ctx context.Context, login string) (domain.UserWithPassword, error) {
	q := `
		SELECT password_hash,` + userColumns + `
		FROM users
		WHERE username = $1 OR (email IS NOT NULL AND email = $1)
		ORDER BY (username = $1) DESC
		LIMIT 1
	`
	return s.getWithPassword(ctx, q, login)
}

func (s *UsersStore) GetUserByEmail(ctx context.Context, email string) (domain.UserWithPassword, error) {
	q := `
		SELECT password_hash,` + userColumns + `
		FROM users
		WHERE email = $1
		LIMIT 1
	`
	return s.getWithPassword(ctx, q, email)
}

func (s *UsersStore) getWithPassword(ctx context.Context, q, arg string) (domain.UserWithPassword, error) {
	var (
		u           domain.UserWithPassword
		idUUID      pgtype.UUID
		emailText   pgtype.Text
		displayText pgtype.Text
		avatarText  pgtype.Text
		pushText    pgtype.Text
		friends     pgtype.FlatArray[string]
		requests    pgtype.FlatArray[string]
		lastLoginTS pgtype.Timestamptz
	)
	err := s.pool.QueryRow(ctx, q, arg).Scan(
		&u.PasswordHash,
		&idUUID,
		&emailText,
		&u.Username,
		&displayText,
		&avatarText,
		&u.Status,
		&pushText,
		&friends,
		&requests,
		&u.CreatedAt,
		&u.UpdatedAt,
		&lastLoginTS,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.UserWithPassword{}, domain.ErrNotFound
		}
		return domain.UserWithPassword{}, fmt.Errorf("get user: %w", err)
	}

	u.ID = uuidOrEmpty(idUUID)
	u.Email = textOrEmpty(emailText)
	u.DisplayName = textOrEmpty(displayText)
	u.AvatarURL = textOrEmpty(avatarText)
	u.PushToken = textOrEmpty(pushText)
	u.Friends = textArrayOrEmpty(friends)
	u.FriendRequests = textArrayOrEmpty(requests)
	u.LastLoginAt = timestamptzPtr(lastLoginTS)
	return u, nil
}

// ListRequestedBy returns the users holding an incoming request from
// requesterID, i.e. the requester's outgoing side.
func (s *UsersStore) ListRequestedBy(ctx context.Context, requesterID string) ([]domain.User, error) {
	q := `SELECT` + userColumns + `FROM users WHERE $1::uuid = ANY(friend_requests)`

	rows, err := s.pool.Query(ctx, q, requesterID)
	if err != nil {
		return nil, fmt.Errorf("list requested by: %w", err)
	}
	defer rows.Close()

	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list requested by: %w", err)
	}
	return out, nil
}

func (s *UsersStore) SetLastLogin(ctx context.Context, userID string, when time.Time) error {
	const q = `
		UPDATE users
		SET last_login_at = $2, updated_at = now()
		WHERE id = $1
	`
	if _, err := s.pool.Exec(ctx, q, userID, when); err != nil {
		return fmt.Errorf("set last login: %w", err)
	}
	return nil
}

// AddFriendRequest appends requesterID to the user's friend_requests set.
// Idempotent: re-adding a present id leaves the row unchanged.
func (s *UsersStore) AddFriendRequest(ctx context.Context, userID, requesterID string) error {
	const q = `
		UPDATE users
		SET friend_requests = CASE
			WHEN $2::uuid = ANY(friend_requests) THEN friend_requests
			ELSE array_append(friend_requests, $2::uuid)
		END,
		updated_at = now()
		WHERE id = $1
	`
	return s.execOnUser(ctx, q, "add friend request", userID, requesterID)
}

func (s *UsersStore) RemoveFriendRequest(ctx context.Context, userID, requesterID string) error {
	const q = `
		UPDATE users
		SET friend_requests = array_remove(friend_requests, $2::uuid), updated_at = now()
		WHERE id = $1
	`
	return s.execOnUser(ctx, q, "remove friend request", userID, requesterID)
}

// AddFriend appends friendID to the user's friends set. One call covers one
// direction only; the relationship service applies both halves and surfaces
// a partial failure when the second half does not land.
func (s *UsersStore) AddFriend(ctx context.Context, userID, friendID string) error {
	const q = `
		UPDATE users
		SET friends = CASE
			WHEN $2::uuid = ANY(friends) THEN friends
			ELSE array_append(friends, $2::uuid)
		END,
		updated_at = now()
		WHERE id = $1
	`
	return s.execOnUser(ctx, q, "add friend", userID, friendID)
}

func (s *UsersStore) RemoveFriend(ctx context.Context, userID, friendID string) error {
	const q = `
		UPDATE users
		SET friends = array_remove(friends, $2::uuid), updated_at = now()
		WHERE id = $1
	`
	return s.execOnUser(ctx, q, "remove friend", userID, friendID)
}

func (s *UsersStore) SetPushToken(ctx context.Context, userID, token string) error {
	const q = `
		UPDATE users
		SET push_token = $2, updated_at = now()
		WHERE id = $1
	`
	ct, err := s.pool.Exec(ctx, q, userID, nullIfEmpty(token))
	if err != nil {
		return fmt.Errorf("set push token: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UsersStore) execOnUser(ctx context.Context, q, op, userID, otherID string) error {
	ct, err := s.pool.Exec(ctx, q, userID, otherID)
	if err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (s *UsersStore) GetUserByExternalAccount(ctx context.Context, provider, providerID string) (domain.User, domain.ExternalAccount, error) {
	const q = `
		SELECT u.id, ea.id, ea.provider, ea.provider_id, ea.email, ea.created_at
		FROM external_accounts ea
		JOIN users u ON u.id = ea.user_id
		WHERE ea.provider = $1 AND ea.provider_id = $2
	`

	var (
		userUUID pgtype.UUID
		eaUUID   pgtype.UUID
		ea       domain.ExternalAccount
		eaEmail  pgtype.Text
	)
	err := s.pool.QueryRow(ctx, q, provider, providerID).Scan(
		&userUUID,
		&eaUUID,
		&ea.Provider,
		&ea.ProviderID,
		&eaEmail,
		&ea.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ExternalAccount{}, domain.ErrNotFound
		}
		return domain.User{}, domain.ExternalAccount{}, fmt.Errorf("get user by external account: %w", err)
	}

	ea.ID = uuidOrEmpty(eaUUID)
	ea.UserID = uuidOrEmpty(userUUID)
	ea.Email = textOrEmpty(eaEmail)

	u, err := s.GetUserByID(ctx, ea.UserID)
	if err != nil {
		return domain.User{}, domain.ExternalAccount{}, err
	}
	return u, ea, nil
}

func (s *UsersStore) LinkExternalAccount(ctx context.Context, userID, provider, providerID, email string) (domain.ExternalAccount, error) {
	const q = `
		INSERT INTO external_accounts (user_id, provider, provider_id, email)
		VALUES ($1, $2, $3, $4)
		RETURNING id, user_id, provider, provider_id, email, created_at
	`

	var (
		ea       domain.ExternalAccount
		eaUUID   pgtype.UUID
		userUUID pgtype.UUID
		eaEmail  pgtype.Text
	)
	err := s.pool.QueryRow(ctx, q, userID, provider, providerID, nullIfEmpty(email)).Scan(
		&eaUUID,
		&userUUID,
		&ea.Provider,
		&ea.ProviderID,
		&eaEmail,
		&ea.CreatedAt,
	)
	if err != nil {
		var pgerr *pgconn.PgError
		if errors.As(err, &pgerr) && pgerr.Code == "23505" {
			return domain.ExternalAccount{}, domain.ErrExternalAccountExists
		}
		return domain.ExternalAccount{}, fmt.Errorf("link external account: %w", err)
	}

	ea.ID = uuidOrEmpty(eaUUID)
	ea.UserID = uuidOrEmpty(userUUID)
	ea.Email = textOrEmpty(eaEmail)
	return ea, nil
}

func (s *UsersStore) CreateUserWithExternalAccount(ctx context.Context, provider, providerID, email, username, passwordHash string) (domain.User, domain.ExternalAccount, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return domain.User{}, domain.ExternalAccount{}, fmt.Errorf("begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	q := `
		INSERT INTO users (email, username, password_hash)
		VALUES ($1, $2, $3)
		RETURNING` + userColumns

	u, err := scanUser(tx.QueryRow(ctx, q, nullIfEmpty(email), username, passwordHash))
	if err != nil {
		return domain.User{}, domain.ExternalAccount{}, mapUserWriteError(err)
	}

	const eaQ = `
		INSERT INTO external_accounts (user_id, provider, provider_id, email)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	var (
		ea     domain.ExternalAccount
		eaUUID pgtype.UUID
	)
	if err := tx.QueryRow(ctx, eaQ, u.ID, provider, providerID, nullIfEmpty(email)).Scan(&eaUUID, &ea.CreatedAt); err != nil {
		var pgerr *pgconn.PgError
		if errors.As(err, &pgerr) && pgerr.Code == "23505" {
			return domain.User{}, domain.ExternalAccount{}, domain.ErrExternalAccountExists
		}
		return domain.User{}, domain.ExternalAccount{}, fmt.Errorf("create external account: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return domain.User{}, domain.ExternalAccount{}, fmt.Errorf("commit: %w", err)
	}

	ea.ID = uuidOrEmpty(eaUUID)
	ea.UserID = u.ID
	ea.Provider = provider
	ea.ProviderID = providerID
	ea.Email = email
	return u, ea, nil
}

func mapUserWriteError(err error) error {
	var pgerr *pgconn.PgError
	if errors.As(err, &pgerr) && pgerr.Code == "23505" {
		switch pgerr.ConstraintName {
		case "users_username_uq":
			return domain.ErrUsernameTaken
		case "users_email_uq":
			return domain.ErrEmailTaken
		default:
			return fmt.Errorf("unique violation (%s): %w", pgerr.ConstraintName, err)
		}
	}
	return fmt.Errorf("create user: %w", err)
}
