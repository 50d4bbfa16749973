package audit

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PostgresStore persists audit events in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) Append(ctx context.Context, event Event) error {
	query := `
		INSERT INTO audit_events (occurred_at, actor_id, action, resource_type, resource_id,
			request_id, ip, user_agent, status_code)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`
	_, err := s.db.ExecContext(ctx, query,
		event.Timestamp, event.ActorID, string(event.Action), event.ResourceType,
		event.ResourceID, event.RequestID, event.IP, event.UserAgent, event.StatusCode)
	if err != nil {
		return fmt.Errorf("append audit event: %w", err)
	}
	return nil
}

func (s *PostgresStore) List(ctx context.Context, filter Filter) ([]Event, error) {
	limit := filter.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	where := []string{"TRUE"}
	args := []any{}
	if filter.Action != "" {
		args = append(args, string(filter.Action))
		where = append(where, fmt.Sprintf("action = $%d", len(args)))
	}
	if filter.ActorID != "" {
		args = append(args, filter.ActorID)
		where = append(where, fmt.Sprintf("actor_id = $%d", len(args)))
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT occurred_at, actor_id, action, resource_type, resource_id,
			request_id, ip, user_agent, status_code
		FROM audit_events
		WHERE %s
		ORDER BY occurred_at DESC, id DESC
		LIMIT $%d
	`, strings.Join(where, " AND "), len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list audit events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		var action string
		if err := rows.Scan(&e.Timestamp, &e.ActorID, &action, &e.ResourceType,
			&e.ResourceID, &e.RequestID, &e.IP, &e.UserAgent, &e.StatusCode); err != nil {
			return nil, fmt.Errorf("scan audit event: %w", err)
		}
		e.Action = Action(action)
		events = append(events, e)
	}
	return events, rows.Err()
}
