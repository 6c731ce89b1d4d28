package accesslog

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/rcfe/casesync/internal/platform/middleware"
)

const recordTimeout = 2 * time.Second

// Recorder persists entries produced by middleware.Audit.
type Recorder struct {
	store Store
}

func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store}
}

// RecordAccess runs after the response is written, so it gets its own
// deadline instead of the request context.
func (r *Recorder) RecordAccess(a middleware.AuditEntry) error {
	e := fromAudit(a)
	e.ID = uuid.New().String()
	if e.AccessedAt.IsZero() {
		e.AccessedAt = time.Now().UTC()
	}
	ctx, cancel := context.WithTimeout(context.Background(), recordTimeout)
	defer cancel()
	return r.store.Record(ctx, e)
}
