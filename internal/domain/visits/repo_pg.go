package visits

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcfe/casesync/internal/platform/db"
)

type queryable interface {
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type visitRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &visitRepoPG{pool: pool} }

func (r *visitRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const visitCols = `id, member_id, member_name, staff_id, staff_email, staff_name, staff_account_id,
	rcfe_id, rcfe_name, visit_date, questionnaire, total_score, flagged, flag_reasons, urgency,
	latitude, longitude, status, signed_off_at, signed_off_by, claim_id, claim_key, created_at, updated_at`

func scanVisit(row pgx.Row, extra ...interface{}) (*Record, error) {
	var v Record
	var q []byte
	dest := []interface{}{&v.ID, &v.MemberID, &v.MemberName, &v.StaffID, &v.StaffEmail, &v.StaffName, &v.StaffAccountID,
		&v.RCFEID, &v.RCFEName, &v.VisitDate, &q, &v.TotalScore, &v.Flagged, &v.FlagReasons, &v.Urgency,
		&v.Latitude, &v.Longitude, &v.Status, &v.SignedOffAt, &v.SignedOffBy, &v.ClaimID, &v.ClaimKey, &v.CreatedAt, &v.UpdatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	if len(q) > 0 {
		if err := json.Unmarshal(q, &v.Questionnaire); err != nil {
			return nil, fmt.Errorf("decode questionnaire of visit %s: %w", v.ID, err)
		}
	}
	return &v, nil
}

func (r *visitRepoPG) Upsert(ctx context.Context, v *Record) (bool, error) {
	q, err := json.Marshal(v.Questionnaire)
	if err != nil {
		return false, fmt.Errorf("encode questionnaire: %w", err)
	}
	reasons := v.FlagReasons
	if reasons == nil {
		reasons = []string{}
	}
	var inserted bool
	stored, err := scanVisit(r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visit_records (id, member_id, member_name, staff_id, staff_email, staff_name, staff_account_id,
			rcfe_id, rcfe_name, visit_date, questionnaire, total_score, flagged, flag_reasons, urgency,
			latitude, longitude, status)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18)
		ON CONFLICT (id) DO UPDATE SET updated_at = NOW()
		RETURNING `+visitCols+`, (xmax = 0)`,
		v.ID, v.MemberID, v.MemberName, v.StaffID, v.StaffEmail, v.StaffName, v.StaffAccountID,
		v.RCFEID, v.RCFEName, v.VisitDate, q, v.TotalScore, v.Flagged, reasons, v.Urgency,
		v.Latitude, v.Longitude, v.Status), &inserted)
	if err != nil {
		return false, fmt.Errorf("upsert visit %s: %w", v.ID, err)
	}
	*v = *stored
	return inserted, nil
}

func (r *visitRepoPG) Get(ctx context.Context, id string) (*Record, error) {
	v, err := scanVisit(r.conn(ctx).QueryRow(ctx, `SELECT `+visitCols+` FROM visit_records WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

func (r *visitRepoPG) SetClaim(ctx context.Context, visitID, claimID, claimKey string) error {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE visit_records SET claim_id = $2, claim_key = $3, updated_at = NOW()
		WHERE id = $1`, visitID, claimID, claimKey)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *visitRepoPG) SignOff(ctx context.Context, id, signer string, at time.Time) (*Record, error) {
	v, err := scanVisit(r.conn(ctx).QueryRow(ctx, `
		UPDATE visit_records SET
			signed_off_at = COALESCE(signed_off_at, $2),
			signed_off_by = COALESCE(signed_off_by, $3),
			updated_at = NOW()
		WHERE id = $1
		RETURNING `+visitCols, id, at, signer))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return v, err
}

type lockRepoPG struct{ pool *pgxpool.Pool }

func NewLockRepoPG(pool *pgxpool.Pool) LockRepository { return &lockRepoPG{pool: pool} }

func (r *lockRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

// Acquire is a single statement: a concurrent insert for the same key waits
// on the first one and then reads its winner.
func (r *lockRepoPG) Acquire(ctx context.Context, memberID, monthKey, visitID string) (string, error) {
	var winner string
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO monthly_visit_locks (member_id, month_key, visit_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (member_id, month_key) DO UPDATE SET visit_id = monthly_visit_locks.visit_id
		RETURNING visit_id`, memberID, monthKey, visitID).Scan(&winner)
	if err != nil {
		return "", fmt.Errorf("acquire monthly lock %s/%s: %w", memberID, monthKey, err)
	}
	return winner, nil
}
