package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
)

// PostgresStore persists users in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const userColumns = `id, ref_id, email, name, password_hash, role, phone, phone_normalized,
	reference_description, suspended, deletion_requested_at, deletion_scheduled_for,
	reset_otp, reset_otp_expires, created_at, updated_at`

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (s *PostgresStore) Create(ctx context.Context, user *User) error {
	query := `
		INSERT INTO users (` + userColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
	`
	_, err := s.db.ExecContext(ctx, query,
		user.ID.String(), user.RefID, user.Email, user.Name, user.PasswordHash,
		user.Role.String(), user.Phone, user.PhoneNormalized, user.ReferenceDescription,
		user.Suspended, toNullTime(user.DeletionRequestedAt), toNullTime(user.DeletionScheduledFor),
		toNullString(user.ResetOTP), toNullTime(user.ResetOTPExpires),
		user.CreatedAt, user.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return dErrors.New(dErrors.CodeConflict, "email already registered")
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (s *PostgresStore) getBy(ctx context.Context, where string, arg any) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE `+where, arg)
	user, err := scanUser(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "user not found")
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return user, nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id domain.UserID) (*User, error) {
	return s.getBy(ctx, "id = $1", id.String())
}

func (s *PostgresStore) GetByEmail(ctx context.Context, email string) (*User, error) {
	return s.getBy(ctx, "lower(email) = lower($1)", email)
}

func (s *PostgresStore) GetByPhone(ctx context.Context, phoneNormalized string) (*User, error) {
	return s.getBy(ctx, "phone_normalized = $1 AND phone_normalized <> ''", phoneNormalized)
}

func (s *PostgresStore) GetByRefID(ctx context.Context, refID string) (*User, error) {
	return s.getBy(ctx, "upper(ref_id) = upper($1)", refID)
}

func (s *PostgresStore) Update(ctx context.Context, user *User) error {
	query := `
		UPDATE users SET
			email = $2, name = $3, password_hash = $4, role = $5, phone = $6,
			phone_normalized = $7, reference_description = $8, suspended = $9,
			deletion_requested_at = $10, deletion_scheduled_for = $11,
			reset_otp = $12, reset_otp_expires = $13, updated_at = $14
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		user.ID.String(), user.Email, user.Name, user.PasswordHash, user.Role.String(),
		user.Phone, user.PhoneNormalized, user.ReferenceDescription, user.Suspended,
		toNullTime(user.DeletionRequestedAt), toNullTime(user.DeletionScheduledFor),
		toNullString(user.ResetOTP), toNullTime(user.ResetOTPExpires), user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update user: %w", err)
	}
	return requireRow(res, "user not found")
}

func (s *PostgresStore) Delete(ctx context.Context, id domain.UserID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM users WHERE id = $1`, id.String())
	if err != nil {
		return fmt.Errorf("delete user: %w", err)
	}
	return requireRow(res, "user not found")
}

func (s *PostgresStore) List(ctx context.Context, filter ListFilter) ([]*User, int, error) {
	filter.Normalize()

	where := []string{"TRUE"}
	args := []any{}
	if filter.Role != "" {
		args = append(args, filter.Role.String())
		where = append(where, fmt.Sprintf("role = $%d", len(args)))
	}
	if filter.Search != "" {
		args = append(args, "%"+filter.Search+"%")
		n := len(args)
		where = append(where, fmt.Sprintf("(name ILIKE $%d OR email ILIKE $%d OR ref_id ILIKE $%d)", n, n, n))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM users WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count users: %w", err)
	}

	args = append(args, filter.Limit, (filter.Page-1)*filter.Limit)
	query := fmt.Sprintf(`SELECT `+userColumns+` FROM users WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		cond, len(args)-1, len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	users, err := collectUsers(rows)
	if err != nil {
		return nil, 0, err
	}
	return users, total, nil
}

func (s *PostgresStore) ListPurgeDue(ctx context.Context, now time.Time) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE deletion_scheduled_for IS NOT NULL AND deletion_scheduled_for <= $1`, now)
	if err != nil {
		return nil, fmt.Errorf("list purge due: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *PostgresStore) Identify(ctx context.Context, q IdentifyQuery, limit int) ([]*User, error) {
	where := []string{}
	args := []any{}
	if q.RefID != "" {
		args = append(args, q.RefID)
		where = append(where, fmt.Sprintf("upper(ref_id) = upper($%d)", len(args)))
	}
	if q.UUID != "" {
		args = append(args, q.UUID)
		where = append(where, fmt.Sprintf("id::text = lower($%d)", len(args)))
	}
	if q.Email != "" {
		args = append(args, q.Email)
		where = append(where, fmt.Sprintf("lower(email) = lower($%d)", len(args)))
	}
	if len(where) == 0 {
		return nil, nil
	}
	args = append(args, limit)
	query := fmt.Sprintf(`SELECT `+userColumns+` FROM users WHERE %s LIMIT $%d`,
		strings.Join(where, " AND "), len(args))
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("identify users: %w", err)
	}
	defer rows.Close()
	return collectUsers(rows)
}

func (s *PostgresStore) CountByRole(ctx context.Context) (map[domain.Role]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT role, count(*) FROM users GROUP BY role`)
	if err != nil {
		return nil, fmt.Errorf("count by role: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.Role]int)
	for rows.Next() {
		var role string
		var n int
		if err := rows.Scan(&role, &n); err != nil {
			return nil, fmt.Errorf("scan role count: %w", err)
		}
		counts[domain.Role(role)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u                    User
		id, role             string
		delRequested, delFor sql.NullTime
		otp                  sql.NullString
		otpExpires           sql.NullTime
	)
	err := row.Scan(&id, &u.RefID, &u.Email, &u.Name, &u.PasswordHash, &role,
		&u.Phone, &u.PhoneNormalized, &u.ReferenceDescription, &u.Suspended,
		&delRequested, &delFor, &otp, &otpExpires, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	u.ID, err = domain.ParseUserID(id)
	if err != nil {
		return nil, err
	}
	u.Role = domain.Role(role)
	u.DeletionRequestedAt = fromNullTime(delRequested)
	u.DeletionScheduledFor = fromNullTime(delFor)
	u.ResetOTP = fromNullString(otp)
	u.ResetOTPExpires = fromNullTime(otpExpires)
	return &u, nil
}

func collectUsers(rows *sql.Rows) ([]*User, error) {
	var users []*User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, fmt.Errorf("scan user: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

func requireRow(res sql.Result, notFoundMsg string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dErrors.New(dErrors.CodeNotFound, notFoundMsg)
	}
	return nil
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

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(s sql.NullString) *string {
	if !s.Valid {
		return nil
	}
	v := s.String
	return &v
}
