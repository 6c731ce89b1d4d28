package assignment

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rcfe/casesync/internal/domain/matching"
	"github.com/rcfe/casesync/internal/domain/members"
	"github.com/rcfe/casesync/internal/platform/telemetry"
)

const (
	maxFastTokens    = 6
	fastPathLimit    = 5000
	fallbackPageSize = 5000
	fallbackMaxRows  = 25000
)

var ErrEmptyIdentifier = errors.New("staff identifier is required")

// MemberSource is the read side of the members cache.
type MemberSource interface {
	Count(ctx context.Context) (int, error)
	FindBySearchKey(ctx context.Context, key string, limit int) ([]*members.Member, error)
	ScanPage(ctx context.Context, limit, offset int) ([]*members.Member, error)
}

// Directory resolves a staff email to the display name used in free-text
// assignment columns.
type Directory interface {
	DisplayName(ctx context.Context, email string) (string, bool, error)
}

type Resolver struct {
	source    MemberSource
	directory Directory
	policy    *members.PlanPolicy
	now       func() time.Time
	logger    zerolog.Logger
	metrics   *telemetry.Metrics
}

func NewResolver(source MemberSource, directory Directory, policy *members.PlanPolicy, logger zerolog.Logger, metrics *telemetry.Metrics) *Resolver {
	if policy == nil {
		policy = members.DefaultPlanPolicy()
	}
	return &Resolver{
		source:    source,
		directory: directory,
		policy:    policy,
		now:       time.Now,
		logger:    logger.With().Str("component", "assignment_resolver").Logger(),
		metrics:   metrics,
	}
}

// ResolveAssignedMembers finds the members assigned to a staff identifier,
// drops unauthorized ones, suppresses holds and expired authorizations, and
// groups the rest by facility.
func (r *Resolver) ResolveAssignedMembers(ctx context.Context, staffIdentifier string) (*Result, error) {
	id := strings.TrimSpace(staffIdentifier)
	if id == "" {
		return nil, ErrEmptyIdentifier
	}
	n, err := r.source.Count(ctx)
	if err != nil {
		return nil, fmt.Errorf("count members: %w", err)
	}
	if n == 0 {
		return nil, members.ErrCacheEmpty
	}

	needles := r.needles(ctx, id)
	matched, path, err := r.fastPath(ctx, needles)
	if err != nil {
		return nil, err
	}
	if len(matched) == 0 {
		matched, path, err = r.fallback(ctx, needles)
		if err != nil {
			return nil, err
		}
	}
	r.metrics.AssignmentLookup(path)

	res := &Result{TotalMatched: len(matched), Path: path, Needles: needles}
	today := r.now()
	var eligible []*members.Member
	for _, m := range matched {
		if !m.IsAuthorized() {
			continue
		}
		res.TotalAssignedAll++
		switch {
		case m.OnHold:
			res.Excluded.Hold++
		case m.AuthExpiredOn(today, r.policy):
			res.Excluded.AuthExpired++
		default:
			eligible = append(eligible, m)
		}
	}
	res.TotalMembers = len(eligible)
	res.Groups = GroupByFacility(eligible)

	r.logger.Debug().Str("staff", id).Str("path", path).Int("matched", res.TotalMatched).
		Int("eligible", res.TotalMembers).Msg("resolved assignments")
	return res, nil
}

func (r *Resolver) needles(ctx context.Context, id string) []string {
	needles := []string{id}
	if r.directory == nil || !matching.IsEmail(id) {
		return needles
	}
	name, ok, err := r.directory.DisplayName(ctx, id)
	if err != nil {
		r.logger.Warn().Err(err).Str("email", id).Msg("staff directory lookup failed")
		return needles
	}
	if ok && !strings.EqualFold(name, id) {
		needles = append(needles, name)
	}
	return needles
}

// fastPath queries the search-key index for every ranked token, longest
// first, and returns the union of verified rows. A member assigned by name
// and one assigned by email both surface for the same caller.
func (r *Resolver) fastPath(ctx context.Context, needles []string) ([]*members.Member, string, error) {
	seen := make(map[string]bool)
	var out []*members.Member
	for _, tok := range matching.RankCandidates(needles, maxFastTokens) {
		rows, err := r.source.FindBySearchKey(ctx, tok, fastPathLimit)
		if err != nil {
			return nil, "", fmt.Errorf("search key %q: %w", tok, err)
		}
		for _, m := range verify(rows, needles) {
			if seen[m.ClientID] {
				continue
			}
			seen[m.ClientID] = true
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, PathNone, nil
	}
	return out, PathFast, nil
}

// fallback scans raw rows page by page and stops at the first page that
// yields a match.
func (r *Resolver) fallback(ctx context.Context, needles []string) ([]*members.Member, string, error) {
	for offset := 0; offset < fallbackMaxRows; offset += fallbackPageSize {
		rows, err := r.source.ScanPage(ctx, fallbackPageSize, offset)
		if err != nil {
			return nil, "", fmt.Errorf("scan members: %w", err)
		}
		if verified := verify(rows, needles); len(verified) > 0 {
			return verified, PathFallback, nil
		}
		if len(rows) < fallbackPageSize {
			break
		}
	}
	return nil, PathNone, nil
}

func verify(rows []*members.Member, needles []string) []*members.Member {
	var out []*members.Member
	for _, m := range rows {
		cand := m.Candidate()
		for _, n := range needles {
			if matching.Matches(n, cand) {
				out = append(out, m)
				break
			}
		}
	}
	return out
}

// GroupByFacility groups by facility id, or normalized name when there is
// no id. Contact details come from the first member seen; groups and the
// members inside them are sorted by name.
func GroupByFacility(list []*members.Member) []Group {
	index := make(map[string]int)
	var groups []Group
	for _, m := range list {
		key := m.Facility.GroupKey()
		i, ok := index[key]
		if !ok {
			f := m.Facility
			groups = append(groups, Group{
				Key:          key,
				ID:           f.ID,
				Name:         f.Name,
				Address:      f.Address,
				ContactName:  f.ContactName,
				ContactPhone: f.ContactPhone,
				ContactEmail: f.ContactEmail,
			})
			i = len(groups) - 1
			index[key] = i
		}
		groups[i].Members = append(groups[i].Members, MemberSummary{
			ClientID:    m.ClientID,
			Name:        m.FullName(),
			PlanType:    m.PlanType,
			AuthEndDate: m.AuthEndDate,
		})
	}
	for i := range groups {
		g := &groups[i]
		sort.SliceStable(g.Members, func(a, b int) bool {
			return strings.ToLower(g.Members[a].Name) < strings.ToLower(g.Members[b].Name)
		})
		g.MemberCount = len(g.Members)
	}
	sort.SliceStable(groups, func(a, b int) bool {
		return strings.ToLower(groups[a].Name) < strings.ToLower(groups[b].Name)
	})
	return groups
}
