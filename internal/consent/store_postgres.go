package consent

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
)

// PostgresStore persists consents in PostgreSQL. A partial unique index on
// (data_id, requester_id) over pending/approved rows closes the duplicate-
// request race at the store; transitions are single UPDATEs guarded by the
// expected current status.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const consentColumns = `id, data_id, requester_id, owner_id, status, purpose,
	expires_at, approved_at, revoked_at, created_at`

func (s *PostgresStore) Create(ctx context.Context, c *Consent) error {
	query := `
		INSERT INTO consents (` + consentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := s.db.ExecContext(ctx, query,
		c.ID.String(), c.DataID.String(), c.RequesterID.String(), c.OwnerID.String(),
		string(c.Status), c.Purpose, nullableTime(c.ExpiresAt), toNullTime(c.ApprovedAt),
		toNullTime(c.RevokedAt), c.CreatedAt,
	)
	if isUniqueViolation(err) {
		return dErrors.New(dErrors.CodeConflict, "an active or pending consent already exists")
	}
	if err != nil {
		return fmt.Errorf("insert consent: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id domain.ConsentID) (*Consent, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE id = $1`, id.String())
	c, err := scanConsent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
	}
	if err != nil {
		return nil, fmt.Errorf("query consent: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) GetCurrent(ctx context.Context, dataID domain.DataID, requesterID domain.UserID) (*Consent, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+consentColumns+` FROM consents
		WHERE data_id = $1 AND requester_id = $2
		ORDER BY created_at DESC LIMIT 1
	`, dataID.String(), requesterID.String())
	c, err := scanConsent(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "consent not found")
	}
	if err != nil {
		return nil, fmt.Errorf("query current consent: %w", err)
	}
	return c, nil
}

func (s *PostgresStore) Approve(ctx context.Context, id domain.ConsentID, approvedAt, expiresAt time.Time) (*Consent, error) {
	return s.transition(ctx, id, StatusPending, `
		UPDATE consents SET status = 'approved', approved_at = $2, expires_at = $3
		WHERE id = $1 AND status = 'pending'
		RETURNING `+consentColumns, approvedAt, expiresAt)
}

func (s *PostgresStore) Reject(ctx context.Context, id domain.ConsentID) (*Consent, error) {
	return s.transition(ctx, id, StatusPending, `
		UPDATE consents SET status = 'rejected'
		WHERE id = $1 AND status = 'pending'
		RETURNING `+consentColumns)
}

func (s *PostgresStore) Revoke(ctx context.Context, id domain.ConsentID, revokedAt time.Time) (*Consent, error) {
	return s.transition(ctx, id, StatusApproved, `
		UPDATE consents SET status = 'revoked', revoked_at = $2
		WHERE id = $1 AND status = 'approved'
		RETURNING `+consentColumns, revokedAt)
}

// transition runs a status-guarded UPDATE. Zero rows means the consent is
// either missing or not in the expected state; a follow-up SELECT tells the
// two apart.
func (s *PostgresStore) transition(ctx context.Context, id domain.ConsentID, from Status, query string, args ...any) (*Consent, error) {
	row := s.db.QueryRowContext(ctx, query, append([]any{id.String()}, args...)...)
	c, err := scanConsent(row)
	if err == nil {
		return c, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("transition consent: %w", err)
	}

	current, getErr := s.GetByID(ctx, id)
	if getErr != nil {
		return nil, getErr
	}
	return nil, dErrors.Newf(dErrors.CodeInvalidState, "consent is %s, expected %s", current.Status, from)
}

func (s *PostgresStore) HasActive(ctx context.Context, dataID domain.DataID, requesterID domain.UserID, now time.Time) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM consents
			WHERE data_id = $1 AND requester_id = $2 AND status = 'approved' AND expires_at > $3
		)
	`, dataID.String(), requesterID.String(), now).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check active consent: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListByData(ctx context.Context, dataID domain.DataID) ([]*Consent, error) {
	return s.list(ctx, `data_id = $1`, dataID.String())
}

func (s *PostgresStore) ListByRequester(ctx context.Context, requesterID domain.UserID) ([]*Consent, error) {
	return s.list(ctx, `requester_id = $1`, requesterID.String())
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID domain.UserID, status Status) ([]*Consent, error) {
	if status == "" {
		return s.list(ctx, `owner_id = $1`, ownerID.String())
	}
	return s.list(ctx, `owner_id = $1 AND status = $2`, ownerID.String(), string(status))
}

func (s *PostgresStore) list(ctx context.Context, where string, args ...any) ([]*Consent, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+consentColumns+` FROM consents WHERE `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list consents: %w", err)
	}
	defer rows.Close()
	return collectConsents(rows)
}

func (s *PostgresStore) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE consents SET status = 'revoked', revoked_at = $1
		WHERE status = 'approved' AND expires_at <= $1
	`, now)
	if err != nil {
		return 0, fmt.Errorf("sweep expired consents: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PostgresStore) ListAll(ctx context.Context, status Status, limit int) ([]*Consent, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+consentColumns+` FROM consents
		WHERE ($1 = '' OR status = $1)
		ORDER BY created_at DESC LIMIT $2
	`, string(status), limit)
	if err != nil {
		return nil, fmt.Errorf("list all consents: %w", err)
	}
	defer rows.Close()
	return collectConsents(rows)
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM consents GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count consents: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan consent count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConsent(row rowScanner) (*Consent, error) {
	var (
		c                          Consent
		id, dataID, requester      string
		owner, status              string
		expires, approved, revoked sql.NullTime
	)
	err := row.Scan(&id, &dataID, &requester, &owner, &status, &c.Purpose,
		&expires, &approved, &revoked, &c.CreatedAt)
	if err != nil {
		return nil, err
	}
	if c.ID, err = domain.ParseConsentID(id); err != nil {
		return nil, err
	}
	if c.DataID, err = domain.ParseDataID(dataID); err != nil {
		return nil, err
	}
	if c.RequesterID, err = domain.ParseUserID(requester); err != nil {
		return nil, err
	}
	if c.OwnerID, err = domain.ParseUserID(owner); err != nil {
		return nil, err
	}
	c.Status = Status(status)
	if expires.Valid {
		c.ExpiresAt = expires.Time
	}
	c.ApprovedAt = fromNullTime(approved)
	c.RevokedAt = fromNullTime(revoked)
	return &c, nil
}

func collectConsents(rows *sql.Rows) ([]*Consent, error) {
	var consents []*Consent
	for rows.Next() {
		c, err := scanConsent(rows)
		if err != nil {
			return nil, fmt.Errorf("scan consent: %w", err)
		}
		consents = append(consents, c)
	}
	return consents, rows.Err()
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func nullableTime(t time.Time) sql.NullTime {
	if t.IsZero() {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: t, Valid: true}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func fromNullTime(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}
