package report

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
)

// PostgresStore persists reports in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const reportColumns = `id, reporter_id, reported_id, category, reason, details,
	status, review_note, reviewer_id, reviewed_at, suspension_applied, created_at`

func (s *PostgresStore) Create(ctx context.Context, r *Report) error {
	query := `
		INSERT INTO reports (` + reportColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID.String(), r.ReporterID.String(), r.ReportedID.String(),
		string(r.Category), r.Reason, r.Details, string(r.Status), r.ReviewNote,
		reviewerToNull(r.ReviewerID), toNullTime(r.ReviewedAt), r.SuspensionApplied, r.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert report: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id domain.ReportID) (*Report, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE id = $1`, id.String())
	r, err := scanReport(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "report not found")
	}
	if err != nil {
		return nil, fmt.Errorf("query report: %w", err)
	}
	return r, nil
}

func (s *PostgresStore) Update(ctx context.Context, r *Report) error {
	query := `
		UPDATE reports SET
			status = $2, review_note = $3, reviewer_id = $4, reviewed_at = $5,
			suspension_applied = $6
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		r.ID.String(), string(r.Status), r.ReviewNote,
		reviewerToNull(r.ReviewerID), toNullTime(r.ReviewedAt), r.SuspensionApplied,
	)
	if err != nil {
		return fmt.Errorf("update report: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dErrors.New(dErrors.CodeNotFound, "report not found")
	}
	return nil
}

func (s *PostgresStore) ListByReporter(ctx context.Context, reporterID domain.UserID) ([]*Report, error) {
	return s.list(ctx, `reporter_id = $1`, reporterID.String())
}

func (s *PostgresStore) List(ctx context.Context, status Status) ([]*Report, error) {
	if status == "" {
		return s.list(ctx, `TRUE`)
	}
	return s.list(ctx, `status = $1`, string(status))
}

func (s *PostgresStore) list(ctx context.Context, where string, args ...any) ([]*Report, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE `+where+` ORDER BY created_at DESC`, args...)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}
	defer rows.Close()

	var reports []*Report
	for rows.Next() {
		r, err := scanReport(rows)
		if err != nil {
			return nil, fmt.Errorf("scan report: %w", err)
		}
		reports = append(reports, r)
	}
	return reports, rows.Err()
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, count(*) FROM reports GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("count reports: %w", err)
	}
	defer rows.Close()

	counts := make(map[Status]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("scan report count: %w", err)
		}
		counts[Status(status)] = n
	}
	return counts, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReport(row rowScanner) (*Report, error) {
	var (
		r                      Report
		id, reporter, reported string
		category, status       string
		reviewer               sql.NullString
		reviewedAt             sql.NullTime
	)
	err := row.Scan(&id, &reporter, &reported, &category, &r.Reason, &r.Details,
		&status, &r.ReviewNote, &reviewer, &reviewedAt, &r.SuspensionApplied, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	if r.ID, err = domain.ParseReportID(id); err != nil {
		return nil, err
	}
	if r.ReporterID, err = domain.ParseUserID(reporter); err != nil {
		return nil, err
	}
	if r.ReportedID, err = domain.ParseUserID(reported); err != nil {
		return nil, err
	}
	r.Category = Category(category)
	r.Status = Status(status)
	if reviewer.Valid {
		rid, err := domain.ParseUserID(reviewer.String)
		if err != nil {
			return nil, err
		}
		r.ReviewerID = &rid
	}
	if reviewedAt.Valid {
		at := reviewedAt.Time
		r.ReviewedAt = &at
	}
	return &r, nil
}

func reviewerToNull(id *domain.UserID) sql.NullString {
	if id == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: id.String(), Valid: true}
}

func toNullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
