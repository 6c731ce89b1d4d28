package accesslog

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type PGStore struct {
	pool *pgxpool.Pool
}

func NewPGStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{pool: pool}
}

func (s *PGStore) Record(ctx context.Context, e *Entry) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO api_access_log (
			id, request_id, subject, email, roles, resource, resource_id,
			action, method, path, ip_address, status_code, accessed_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		e.ID, e.RequestID, e.Subject, e.Email, e.Roles, e.Resource, e.ResourceID,
		e.Action, e.Method, e.Path, e.IPAddress, e.StatusCode, e.AccessedAt)
	if err != nil {
		return fmt.Errorf("insert access log: %w", err)
	}
	return nil
}

func (s *PGStore) Search(ctx context.Context, p SearchParams) ([]*Entry, int, error) {
	where, args := searchClause(p)

	var total int
	if err := s.pool.QueryRow(ctx, "SELECT COUNT(*) FROM api_access_log"+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count access log: %w", err)
	}

	query := `SELECT id, request_id, subject, email, roles, resource, resource_id,
		action, method, path, ip_address, status_code, accessed_at
		FROM api_access_log` + where +
		fmt.Sprintf(" ORDER BY accessed_at DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, p.Limit, p.Offset)

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search access log: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}

func searchClause(p SearchParams) (string, []interface{}) {
	var conds []string
	var args []interface{}
	add := func(cond string, v interface{}) {
		args = append(args, v)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if p.Subject != "" {
		add("subject = $%d", p.Subject)
	}
	if p.Resource != "" {
		add("resource = $%d", p.Resource)
	}
	if p.ResourceID != "" {
		add("resource_id = $%d", p.ResourceID)
	}
	if p.Action != "" {
		add("action = $%d", p.Action)
	}
	if p.Start != nil {
		add("accessed_at >= $%d", *p.Start)
	}
	if p.End != nil {
		add("accessed_at <= $%d", *p.End)
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	if err := row.Scan(&e.ID, &e.RequestID, &e.Subject, &e.Email, &e.Roles, &e.Resource, &e.ResourceID,
		&e.Action, &e.Method, &e.Path, &e.IPAddress, &e.StatusCode, &e.AccessedAt); err != nil {
		return nil, fmt.Errorf("scan access log: %w", err)
	}
	return &e, nil
}
