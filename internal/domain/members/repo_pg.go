package members

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rcfe/casesync/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

type memberRepoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository { return &memberRepoPG{pool: pool} }

func (r *memberRepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const memberCols = `client_id, first_name, last_name, assigned_staff_id, staff_assigned,
	social_worker_assigned, case_manager, authorization_status, hold_text, on_hold,
	auth_end_date, plan_type, rcfe_id, rcfe_name, rcfe_address, rcfe_contact_name,
	rcfe_contact_phone, rcfe_contact_email, search_keys, raw, upstream_updated_at, synced_at`

const upsertMember = `
	INSERT INTO members (` + memberCols + `)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20,$21,$22)
	ON CONFLICT (client_id) DO UPDATE SET
		first_name = EXCLUDED.first_name,
		last_name = EXCLUDED.last_name,
		assigned_staff_id = EXCLUDED.assigned_staff_id,
		staff_assigned = EXCLUDED.staff_assigned,
		social_worker_assigned = EXCLUDED.social_worker_assigned,
		case_manager = EXCLUDED.case_manager,
		authorization_status = EXCLUDED.authorization_status,
		hold_text = EXCLUDED.hold_text,
		on_hold = EXCLUDED.on_hold,
		auth_end_date = EXCLUDED.auth_end_date,
		plan_type = EXCLUDED.plan_type,
		rcfe_id = EXCLUDED.rcfe_id,
		rcfe_name = EXCLUDED.rcfe_name,
		rcfe_address = EXCLUDED.rcfe_address,
		rcfe_contact_name = EXCLUDED.rcfe_contact_name,
		rcfe_contact_phone = EXCLUDED.rcfe_contact_phone,
		rcfe_contact_email = EXCLUDED.rcfe_contact_email,
		search_keys = EXCLUDED.search_keys,
		raw = EXCLUDED.raw,
		upstream_updated_at = EXCLUDED.upstream_updated_at,
		synced_at = EXCLUDED.synced_at`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	err := row.Scan(&m.ClientID, &m.FirstName, &m.LastName, &m.AssignedStaffID, &m.StaffAssigned,
		&m.SocialWorkerAssigned, &m.CaseManager, &m.AuthorizationStatus, &m.HoldText, &m.OnHold,
		&m.AuthEndDate, &m.PlanType, &m.Facility.ID, &m.Facility.Name, &m.Facility.Address, &m.Facility.ContactName,
		&m.Facility.ContactPhone, &m.Facility.ContactEmail, &m.SearchKeys, &m.Raw, &m.UpstreamUpdatedAt, &m.SyncedAt)
	return &m, err
}

func (r *memberRepoPG) Upsert(ctx context.Context, members []*Member) error {
	if len(members) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, m := range members {
		keys := m.SearchKeys
		if keys == nil {
			keys = []string{}
		}
		batch.Queue(upsertMember,
			m.ClientID, m.FirstName, m.LastName, m.AssignedStaffID, m.StaffAssigned,
			m.SocialWorkerAssigned, m.CaseManager, m.AuthorizationStatus, m.HoldText, m.OnHold,
			m.AuthEndDate, m.PlanType, m.Facility.ID, m.Facility.Name, m.Facility.Address, m.Facility.ContactName,
			m.Facility.ContactPhone, m.Facility.ContactEmail, keys, m.Raw, m.UpstreamUpdatedAt, m.SyncedAt)
	}
	br := r.conn(ctx).SendBatch(ctx, batch)
	defer br.Close()
	for _, m := range members {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("upsert member %s: %w", m.ClientID, err)
		}
	}
	return nil
}

func (r *memberRepoPG) Get(ctx context.Context, clientID string) (*Member, error) {
	m, err := scanMember(r.conn(ctx).QueryRow(ctx, `SELECT `+memberCols+` FROM members WHERE client_id = $1`, clientID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return m, err
}

func (r *memberRepoPG) Count(ctx context.Context) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM members`).Scan(&n)
	return n, err
}

func (r *memberRepoPG) FindBySearchKey(ctx context.Context, key string, limit int) ([]*Member, error) {
	return r.list(ctx, `SELECT `+memberCols+` FROM members WHERE $1 = ANY(search_keys) ORDER BY client_id LIMIT $2`, key, limit)
}

func (r *memberRepoPG) ScanPage(ctx context.Context, limit, offset int) ([]*Member, error) {
	return r.list(ctx, `SELECT `+memberCols+` FROM members ORDER BY client_id LIMIT $1 OFFSET $2`, limit, offset)
}

func (r *memberRepoPG) list(ctx context.Context, sql string, args ...interface{}) ([]*Member, error) {
	rows, err := r.conn(ctx).Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []*Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *memberRepoPG) GetSyncMetadata(ctx context.Context, name string) (*SyncMetadata, error) {
	var m SyncMetadata
	var mode string
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT name, last_sync_at, last_attempt_at, mode, row_count, pages, complete, last_error
		FROM sync_metadata WHERE name = $1`, name).
		Scan(&m.Name, &m.LastSyncAt, &m.LastAttemptAt, &mode, &m.RowCount, &m.Pages, &m.Complete, &m.LastError)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	m.Mode = SyncMode(mode)
	return &m, nil
}

func (r *memberRepoPG) SaveSyncMetadata(ctx context.Context, m *SyncMetadata) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO sync_metadata (name, last_sync_at, last_attempt_at, mode, row_count, pages, complete, last_error, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,NOW())
		ON CONFLICT (name) DO UPDATE SET
			last_sync_at = EXCLUDED.last_sync_at,
			last_attempt_at = EXCLUDED.last_attempt_at,
			mode = EXCLUDED.mode,
			row_count = EXCLUDED.row_count,
			pages = EXCLUDED.pages,
			complete = EXCLUDED.complete,
			last_error = EXCLUDED.last_error,
			updated_at = NOW()`,
		m.Name, m.LastSyncAt, m.LastAttemptAt, string(m.Mode), m.RowCount, m.Pages, m.Complete, m.LastError)
	return err
}
