package staff

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcfe/casesync/internal/domain/matching"
	"github.com/rcfe/casesync/internal/platform/caspio"
	"github.com/rcfe/casesync/internal/platform/kv"
)

const (
	directoryCacheKey = "casesync:staff:directory"
	directoryPageSize = caspio.MaxPageSize
	directoryMaxPages = 20
)

// Staff directory columns.
const (
	colStaffID   = "Staff_ID"
	colAccountID = "Account_ID"
	colFirst     = "First_Name"
	colLast      = "Last_Name"
	colEmail     = "Email"
	colRole      = "Role"
	colActive    = "Active"
)

type Upstream interface {
	Session(ctx context.Context) (caspio.Pager, error)
}

type DirectoryOptions struct {
	Table      string
	TTL        time.Duration
	Escalation []string
}

// Directory resolves staff identities against the upstream staff table,
// caching the table in the key-value store.
type Directory struct {
	upstream   Upstream
	store      kv.Store
	table      string
	ttl        time.Duration
	escalation []string
	logger     zerolog.Logger
}

func NewDirectory(upstream Upstream, store kv.Store, opts DirectoryOptions, logger zerolog.Logger) *Directory {
	if opts.TTL <= 0 {
		opts.TTL = 15 * time.Minute
	}
	if store == nil {
		store = kv.NewMemoryStore()
	}
	return &Directory{
		upstream:   upstream,
		store:      store,
		table:      opts.Table,
		ttl:        opts.TTL,
		escalation: opts.Escalation,
		logger:     logger.With().Str("component", "staff_directory").Logger(),
	}
}

// ListStaff returns the whole directory, from cache when possible.
func (d *Directory) ListStaff(ctx context.Context) ([]Member, error) {
	raw, err := d.store.Get(ctx, directoryCacheKey)
	switch {
	case err == nil:
		var out []Member
		if jerr := json.Unmarshal([]byte(raw), &out); jerr == nil {
			return out, nil
		}
		d.logger.Warn().Msg("discarding undecodable staff directory cache entry")
	case !errors.Is(err, kv.ErrCacheMiss):
		d.logger.Warn().Err(err).Msg("staff directory cache read failed")
	}

	staff, err := d.fetch(ctx)
	if err != nil {
		return nil, err
	}
	if data, err := json.Marshal(staff); err == nil {
		if err := d.store.Set(ctx, directoryCacheKey, string(data), d.ttl); err != nil {
			d.logger.Warn().Err(err).Msg("staff directory cache write failed")
		}
	}
	return staff, nil
}

func (d *Directory) fetch(ctx context.Context) ([]Member, error) {
	pager, err := d.upstream.Session(ctx)
	if err != nil {
		return nil, fmt.Errorf("staff directory session: %w", err)
	}
	var out []Member
	for page := 1; page <= directoryMaxPages; page++ {
		rows, err := pager.FetchPage(ctx, d.table, caspio.Where{}, page, directoryPageSize)
		if err != nil {
			return nil, fmt.Errorf("fetch staff page %d: %w", page, err)
		}
		for _, r := range rows {
			out = append(out, fromRow(r))
		}
		if len(rows) < directoryPageSize {
			break
		}
	}
	return out, nil
}

func fromRow(r caspio.Row) Member {
	active := true
	switch strings.ToLower(r.String(colActive)) {
	case "false", "no", "n", "0", "inactive":
		active = false
	}
	return Member{
		ID:        r.String(colStaffID),
		AccountID: r.String(colAccountID),
		FirstName: r.String(colFirst),
		LastName:  r.String(colLast),
		Email:     strings.ToLower(r.String(colEmail)),
		Role:      r.String(colRole),
		Active:    active,
	}
}

// DisplayName looks up "First Last" for an email address.
func (d *Directory) DisplayName(ctx context.Context, email string) (string, bool, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return "", false, nil
	}
	staff, err := d.ListStaff(ctx)
	if err != nil {
		return "", false, err
	}
	for _, s := range staff {
		if strings.EqualFold(s.Email, email) && s.FullName() != "" {
			return s.FullName(), true, nil
		}
	}
	return "", false, nil
}

// ResolveContacts returns every active staff member named by a free-text
// assignment plus the escalation addresses, deduplicated by email.
func (d *Directory) ResolveContacts(ctx context.Context, assignment string) ([]Contact, error) {
	var out []Contact
	seen := make(map[string]bool)
	add := func(c Contact) {
		if k := c.key(); !seen[k] {
			seen[k] = true
			out = append(out, c)
		}
	}

	needles := splitAssignment(assignment)
	if len(needles) > 0 {
		staff, err := d.ListStaff(ctx)
		if err != nil {
			return nil, err
		}
		for _, s := range staff {
			if !s.Active {
				continue
			}
			cand := s.Candidate()
			for _, n := range needles {
				if matching.Matches(n, cand) {
					add(Contact{Name: s.FullName(), Email: s.Email, Role: s.Role, Source: SourceAssignment})
					break
				}
			}
		}
	}
	for _, e := range d.escalation {
		if e = strings.ToLower(strings.TrimSpace(e)); e != "" {
			add(Contact{Email: e, Source: SourceEscalation})
		}
	}
	return out, nil
}

// splitAssignment yields the whole string plus each listed name. Commas only
// split when every piece looks like a full name or address, so a single
// "Last, First" stays intact.
func splitAssignment(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	needles := []string{s}
	for _, part := range strings.Split(s, ";") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		pieces := strings.Split(part, ",")
		if len(pieces) > 1 && allNamed(pieces) {
			for _, p := range pieces {
				needles = append(needles, strings.TrimSpace(p))
			}
			continue
		}
		needles = append(needles, part)
	}
	return dedupe(needles)
}

func allNamed(pieces []string) bool {
	for _, p := range pieces {
		if !matching.IsEmail(p) && len(matching.Tokens(p)) < 2 {
			return false
		}
	}
	return true
}

func dedupe(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := in[:0]
	for _, s := range in {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
