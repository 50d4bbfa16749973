package record

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"datashare/pkg/domain"
	dErrors "datashare/pkg/domain-errors"
)

// tags persist as a JSONB array so scanning stays plain database/sql.
func tagsToJSON(tags []string) []byte {
	if tags == nil {
		tags = []string{}
	}
	b, _ := json.Marshal(tags)
	return b
}

// PostgresStore persists data records in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

const recordColumns = `id, owner_id, owner_ref_id, owner_uuid, owner_name, owner_email, owner_phone,
	owner_reference_description, title, description, category, tags, kind, content,
	file_ref, file_name, file_size, file_mime, reference_hint, owner_identifier,
	allow_download, deleted, created_at, updated_at`

func (s *PostgresStore) Create(ctx context.Context, rec *DataRecord) error {
	query := `
		INSERT INTO data_records (` + recordColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16,
			$17, $18, $19, $20, $21, $22, $23, $24)
	`
	_, err := s.db.ExecContext(ctx, query,
		rec.ID.String(), rec.OwnerID.String(), rec.Owner.RefID, rec.Owner.UUID,
		rec.Owner.Name, rec.Owner.Email, rec.Owner.Phone, rec.Owner.ReferenceDescription,
		rec.Title, rec.Description, rec.Category, tagsToJSON(rec.Tags), string(rec.Kind),
		rec.Content, rec.FileRef, rec.FileName, rec.FileSize, rec.FileMime,
		rec.ReferenceHint, rec.OwnerIdent, rec.AllowDownload, rec.Deleted,
		rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert data record: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetByID(ctx context.Context, id domain.DataID) (*DataRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+recordColumns+` FROM data_records WHERE id = $1`, id.String())
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, dErrors.New(dErrors.CodeNotFound, "data record not found")
	}
	if err != nil {
		return nil, fmt.Errorf("query data record: %w", err)
	}
	return rec, nil
}

func (s *PostgresStore) Update(ctx context.Context, rec *DataRecord) error {
	query := `
		UPDATE data_records SET
			title = $2, description = $3, category = $4, tags = $5, content = $6,
			reference_hint = $7, owner_identifier = $8, allow_download = $9,
			deleted = $10, updated_at = $11
		WHERE id = $1
	`
	res, err := s.db.ExecContext(ctx, query,
		rec.ID.String(), rec.Title, rec.Description, rec.Category, tagsToJSON(rec.Tags),
		rec.Content, rec.ReferenceHint, rec.OwnerIdent, rec.AllowDownload,
		rec.Deleted, rec.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("update data record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return dErrors.New(dErrors.CodeNotFound, "data record not found")
	}
	return nil
}

func (s *PostgresStore) ListByOwner(ctx context.Context, ownerID domain.UserID) ([]*DataRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+recordColumns+` FROM data_records WHERE owner_id = $1 AND deleted = FALSE ORDER BY created_at DESC`,
		ownerID.String())
	if err != nil {
		return nil, fmt.Errorf("list records by owner: %w", err)
	}
	defer rows.Close()
	return collectRecords(rows)
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]*DataRecord, int, error) {
	filter.Normalize()

	where := []string{"TRUE"}
	args := []any{}
	arg := func(v any) int {
		args = append(args, v)
		return len(args)
	}

	if !filter.IncludeDeleted {
		where = append(where, "deleted = FALSE")
	}
	if !filter.ExcludeOwner.IsNil() {
		where = append(where, fmt.Sprintf("owner_id <> $%d", arg(filter.ExcludeOwner.String())))
	}
	if filter.Title != "" {
		where = append(where, fmt.Sprintf("title ILIKE $%d", arg("%"+filter.Title+"%")))
	}
	if filter.Category != "" {
		where = append(where, fmt.Sprintf("lower(category) = lower($%d)", arg(filter.Category)))
	}
	for _, tag := range filter.Tags {
		where = append(where, fmt.Sprintf(
			"EXISTS (SELECT 1 FROM jsonb_array_elements_text(tags) t WHERE lower(t) = lower($%d))", arg(tag)))
	}
	if filter.Search != "" {
		n := arg("%" + filter.Search + "%")
		where = append(where, fmt.Sprintf("(title ILIKE $%d OR description ILIKE $%d OR owner_name ILIKE $%d)", n, n, n))
	}
	if filter.OwnerRefID != "" {
		where = append(where, fmt.Sprintf("upper(owner_ref_id) = upper($%d)", arg(filter.OwnerRefID)))
	}
	if filter.OwnerUUID != "" {
		where = append(where, fmt.Sprintf("lower(owner_uuid) = lower($%d)", arg(filter.OwnerUUID)))
	}
	if filter.OwnerEmail != "" {
		where = append(where, fmt.Sprintf("lower(owner_email) = lower($%d)", arg(filter.OwnerEmail)))
	}
	if filter.OwnerPhone != "" {
		where = append(where, fmt.Sprintf("owner_phone = $%d", arg(filter.OwnerPhone)))
	}
	if filter.OwnerName != "" {
		where = append(where, fmt.Sprintf("owner_name ILIKE $%d", arg("%"+filter.OwnerName+"%")))
	}
	cond := strings.Join(where, " AND ")

	var total int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM data_records WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count data records: %w", err)
	}

	limitPos := arg(filter.Limit)
	offsetPos := arg((filter.Page - 1) * filter.Limit)
	query := fmt.Sprintf(`SELECT `+recordColumns+` FROM data_records WHERE %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d`,
		cond, limitPos, offsetPos)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list data records: %w", err)
	}
	defer rows.Close()

	recs, err := collectRecords(rows)
	if err != nil {
		return nil, 0, err
	}
	return recs, total, nil
}

func (s *PostgresStore) SoftDeleteByOwner(ctx context.Context, ownerID domain.UserID) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`UPDATE data_records SET deleted = TRUE, updated_at = now() WHERE owner_id = $1 AND deleted = FALSE`,
		ownerID.String())
	if err != nil {
		return 0, fmt.Errorf("soft delete records by owner: %w", err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *PostgresStore) RefreshOwnerSnapshot(ctx context.Context, ownerID domain.UserID, snap OwnerSnapshot) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE data_records SET
			owner_ref_id = $2, owner_uuid = $3, owner_name = $4, owner_email = $5,
			owner_phone = $6, owner_reference_description = $7
		WHERE owner_id = $1
	`, ownerID.String(), snap.RefID, snap.UUID, snap.Name, snap.Email, snap.Phone, snap.ReferenceDescription)
	if err != nil {
		return fmt.Errorf("refresh owner snapshot: %w", err)
	}
	return nil
}

func (s *PostgresStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT count(*) FROM data_records WHERE deleted = FALSE`).Scan(&n); err != nil {
		return 0, fmt.Errorf("count data records: %w", err)
	}
	return n, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*DataRecord, error) {
	var (
		rec       DataRecord
		id, owner string
		kind      string
		tagsRaw   []byte
	)
	err := row.Scan(&id, &owner, &rec.Owner.RefID, &rec.Owner.UUID, &rec.Owner.Name,
		&rec.Owner.Email, &rec.Owner.Phone, &rec.Owner.ReferenceDescription,
		&rec.Title, &rec.Description, &rec.Category, &tagsRaw, &kind, &rec.Content,
		&rec.FileRef, &rec.FileName, &rec.FileSize, &rec.FileMime,
		&rec.ReferenceHint, &rec.OwnerIdent, &rec.AllowDownload, &rec.Deleted,
		&rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return nil, err
	}
	rec.ID, err = domain.ParseDataID(id)
	if err != nil {
		return nil, err
	}
	rec.OwnerID, err = domain.ParseUserID(owner)
	if err != nil {
		return nil, err
	}
	rec.Kind = Kind(kind)
	if len(tagsRaw) > 0 {
		if err := json.Unmarshal(tagsRaw, &rec.Tags); err != nil {
			return nil, fmt.Errorf("decode tags: %w", err)
		}
	}
	return &rec, nil
}

func collectRecords(rows *sql.Rows) ([]*DataRecord, error) {
	var recs []*DataRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan data record: %w", err)
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}
