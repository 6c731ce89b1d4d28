package claims

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcfe/casesync/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type draftRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &draftRepoPG{pool: pool} }

func (r *draftRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const draftCols = `id, claim_key, staff_identity, staff_name, claim_date, visit_ids, line_items,
	fee_rate::float8, gas_flat_rate::float8, visit_count, total_amount::float8, status, created_at, updated_at`

func scanDraft(row pgx.Row) (*Draft, error) {
	var d Draft
	var items []byte
	err := row.Scan(&d.ID, &d.Key, &d.StaffIdentity, &d.StaffName, &d.ClaimDate, &d.VisitIDs, &items,
		&d.FeeRate, &d.GasFlatRate, &d.VisitCount, &d.TotalAmount, &d.Status, &d.CreatedAt, &d.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if len(items) > 0 {
		if err := json.Unmarshal(items, &d.LineItems); err != nil {
			return nil, fmt.Errorf("decode line items for claim %s: %w", d.ID, err)
		}
	}
	return &d, nil
}

func (r *draftRepoPG) LockDraft(ctx context.Context, init *Draft) (*Draft, error) {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO claim_drafts (claim_key, id, staff_identity, staff_name, claim_date, fee_rate, gas_flat_rate, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		ON CONFLICT (claim_key) DO NOTHING`,
		init.Key, init.ID, init.StaffIdentity, init.StaffName, init.ClaimDate, init.FeeRate, init.GasFlatRate, StatusDraft)
	if err != nil {
		return nil, fmt.Errorf("ensure claim draft %s: %w", init.Key, err)
	}
	return scanDraft(r.conn(ctx).QueryRow(ctx, `SELECT `+draftCols+` FROM claim_drafts WHERE claim_key = $1 FOR UPDATE`, init.Key))
}

func (r *draftRepoPG) Save(ctx context.Context, d *Draft) error {
	items, err := json.Marshal(d.LineItems)
	if err != nil {
		return err
	}
	visitIDs := d.VisitIDs
	if visitIDs == nil {
		visitIDs = []string{}
	}
	_, err = r.conn(ctx).Exec(ctx, `
		UPDATE claim_drafts SET staff_name=$2, visit_ids=$3, line_items=$4, visit_count=$5,
			total_amount=$6, status=$7, updated_at=NOW()
		WHERE claim_key = $1`,
		d.Key, d.StaffName, visitIDs, items, d.VisitCount, d.TotalAmount, d.Status)
	return err
}

func (r *draftRepoPG) Get(ctx context.Context, id string) (*Draft, error) {
	return scanDraft(r.conn(ctx).QueryRow(ctx, `SELECT `+draftCols+` FROM claim_drafts WHERE id = $1`, id))
}

func (r *draftRepoPG) List(ctx context.Context, staffIdentity string, day *time.Time, limit, offset int) ([]*Draft, int, error) {
	var where []string
	var args []interface{}
	if staffIdentity != "" {
		args = append(args, staffIdentity)
		where = append(where, fmt.Sprintf("staff_identity = $%d", len(args)))
	}
	if day != nil {
		args = append(args, *day)
		where = append(where, fmt.Sprintf("claim_date = $%d", len(args)))
	}
	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM claim_drafts`+clause, args...).Scan(&total); err != nil {
		return nil, 0, err
	}
	args = append(args, limit, offset)
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+draftCols+` FROM claim_drafts`+clause+
		fmt.Sprintf(" ORDER BY claim_date DESC, staff_identity LIMIT $%d OFFSET $%d", len(args)-1, len(args)), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()
	var out []*Draft
	for rows.Next() {
		d, err := scanDraft(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, d)
	}
	return out, total, rows.Err()
}

func (r *draftRepoPG) UpdateStatus(ctx context.Context, id, status string) error {
	tag, err := r.conn(ctx).Exec(ctx, `UPDATE claim_drafts SET status=$2, updated_at=NOW() WHERE id=$1`, id, status)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
