package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"ReadyCheckserver/internal/domain"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

type ReadyChecksStore struct {
	pool *pgxpool.Pool
}

func NewReadyChecksStore(pool *pgxpool.Pool) *ReadyChecksStore {
	return &ReadyChecksStore{pool: pool}
}

const readycheckColumns = `
	id, owner_id, title, timing, description, invitees::text[], rsvps, created_at, updated_at
`

func scanReadyCheck(row pgx.Row) (domain.ReadyCheck, error) {
	var (
		rc        domain.ReadyCheck
		idUUID    pgtype.UUID
		ownerUUID pgtype.UUID
		descText  pgtype.Text
		invitees  pgtype.FlatArray[string]
		rawRSVPs  []byte
	)
	err := row.Scan(
		&idUUID,
		&ownerUUID,
		&rc.Title,
		&rc.Timing,
		&descText,
		&invitees,
		&rawRSVPs,
		&rc.CreatedAt,
		&rc.UpdatedAt,
	)
	if err != nil {
		return domain.ReadyCheck{}, err
	}

	rsvps, err := rsvpsFromJSON(rawRSVPs)
	if err != nil {
		return domain.ReadyCheck{}, err
	}

	rc.ID = uuidOrEmpty(idUUID)
	rc.OwnerID = uuidOrEmpty(ownerUUID)
	rc.Description = textOrEmpty(descText)
	rc.Invitees = textArrayOrEmpty(invitees)
	rc.RSVPs = rsvps
	return rc, nil
}

func (s *ReadyChecksStore) CreateReadyCheck(ctx context.Context, ownerID, title string, timing time.Time, description string, invitees []string) (domain.ReadyCheck, error) {
	q := `
		INSERT INTO readychecks (owner_id, title, timing, description, invitees)
		VALUES ($1, $2, $3, $4, $5::uuid[])
		RETURNING` + readycheckColumns

	rc, err := scanReadyCheck(s.pool.QueryRow(ctx, q, ownerID, title, timing, nullIfEmpty(description), invitees))
	if err != nil {
		return domain.ReadyCheck{}, fmt.Errorf("create readycheck: %w", err)
	}
	return rc, nil
}

func (s *ReadyChecksStore) GetReadyCheck(ctx context.Context, id string) (domain.ReadyCheck, error) {
	q := `SELECT` + readycheckColumns + `FROM readychecks WHERE id = $1`

	rc, err := scanReadyCheck(s.pool.QueryRow(ctx, q, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReadyCheck{}, domain.ErrNotFound
		}
		return domain.ReadyCheck{}, fmt.Errorf("get readycheck: %w", err)
	}
	return rc, nil
}

func (s *ReadyChecksStore) UpdateReadyCheck(ctx context.Context, id, title string, timing time.Time, description string, invitees []string, when time.Time) (domain.ReadyCheck, error) {
	q := `
		UPDATE readychecks
		SET title = $2, timing = $3, description = $4, invitees = $5::uuid[], updated_at = $6
		WHERE id = $1
		RETURNING` + readycheckColumns

	rc, err := scanReadyCheck(s.pool.QueryRow(ctx, q, id, title, timing, nullIfEmpty(description), invitees, when))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReadyCheck{}, domain.ErrNotFound
		}
		return domain.ReadyCheck{}, fmt.Errorf("update readycheck: %w", err)
	}
	return rc, nil
}

func (s *ReadyChecksStore) DeleteReadyCheck(ctx context.Context, id string) error {
	const q = `DELETE FROM readychecks WHERE id = $1`

	ct, err := s.pool.Exec(ctx, q, id)
	if err != nil {
		return fmt.Errorf("delete readycheck: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetRSVP upserts one ledger entry, last write wins.
func (s *ReadyChecksStore) SetRSVP(ctx context.Context, id, userID string, response domain.RSVP, when time.Time) (domain.ReadyCheck, error) {
	value, err := json.Marshal(response)
	if err != nil {
		return domain.ReadyCheck{}, fmt.Errorf("encode rsvp: %w", err)
	}

	q := `
		UPDATE readychecks
		SET rsvps = jsonb_set(coalesce(rsvps, '{}'::jsonb), ARRAY[$2::text], $3::jsonb), updated_at = $4
		WHERE id = $1
		RETURNING` + readycheckColumns

	rc, err := scanReadyCheck(s.pool.QueryRow(ctx, q, id, userID, value, when))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.ReadyCheck{}, domain.ErrNotFound
		}
		return domain.ReadyCheck{}, fmt.Errorf("set rsvp: %w", err)
	}
	return rc, nil
}

func (s *ReadyChecksStore) ListOwned(ctx context.Context, ownerID string) ([]domain.ReadyCheck, error) {
	q := `
		SELECT` + readycheckColumns + `
		FROM readychecks
		WHERE owner_id = $1
		ORDER BY timing ASC
	`
	return s.list(ctx, q, ownerID)
}

func (s *ReadyChecksStore) ListInvited(ctx context.Context, userID string) ([]domain.ReadyCheck, error) {
	q := `
		SELECT` + readycheckColumns + `
		FROM readychecks
		WHERE $1::uuid = ANY(invitees) AND owner_id <> $1
		ORDER BY timing ASC
	`
	return s.list(ctx, q, userID)
}

func (s *ReadyChecksStore) list(ctx context.Context, q, arg string) ([]domain.ReadyCheck, error) {
	rows, err := s.pool.Query(ctx, q, arg)
	if err != nil {
		return nil, fmt.Errorf("list readychecks: %w", err)
	}
	defer rows.Close()

	var out []domain.ReadyCheck
	for rows.Next() {
		rc, err := scanReadyCheck(rows)
		if err != nil {
			return nil, fmt.Errorf("scan readycheck: %w", err)
		}
		out = append(out, rc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list readychecks: %w", err)
	}
	return out, nil
}
