// Package caspio is a small client for the tabular data platform the case
// records live in: bearer-token REST, page-numbered record listing and
// `field='value'` filters, with rows returned as `{"Result": [...]}`.
package caspio

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog"
)

// MaxPageSize is the largest page the tables API serves.
const MaxPageSize = 1000

// Row is one upstream record keyed by column name.
type Row map[string]interface{}

// String returns the column as trimmed text; numbers and bools are formatted.
func (r Row) String(key string) string {
	v, ok := r[key]
	if !ok || v == nil {
		return ""
	}
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return strings.TrimSpace(fmt.Sprint(t))
	}
}

// Time parses a date or timestamp column. Empty or unparsable values yield nil.
func (r Row) Time(key string) *time.Time {
	s := r.String(key)
	if s == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02", "01/02/2006"} {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

// StatusError is a non-2xx response from the platform.
type StatusError struct {
	Op         string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("caspio %s: status %d: %s", e.Op, e.StatusCode, e.Body)
}

// Pager fetches one page of a table.
type Pager interface {
	FetchPage(ctx context.Context, table string, where Where, pageNumber, pageSize int) ([]Row, error)
}

// Client talks to one account's REST endpoint.
type Client struct {
	http   *resty.Client
	tokens TokenSource
	logger zerolog.Logger
}

type Options struct {
	BaseURL      string
	ClientID     string
	ClientSecret string
	Timeout      time.Duration
}

// NewClient builds a client whose token source shares its HTTP settings.
// Requests are not retried here; sync callers own retry policy.
func NewClient(opts Options, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	http := resty.New().
		SetBaseURL(strings.TrimRight(opts.BaseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(0).
		SetHeader("Accept", "application/json")

	return &Client{
		http:   http,
		tokens: NewClientCredentials(http, opts.ClientID, opts.ClientSecret),
		logger: logger.With().Str("component", "caspio").Logger(),
	}
}

// Session obtains a fresh bearer token and returns a pager bound to it.
func (c *Client) Session(ctx context.Context) (Pager, error) {
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return nil, err
	}
	return &session{client: c, token: token}, nil
}

type session struct {
	client *Client
	token  string
}

type recordsResponse struct {
	Result []Row `json:"Result"`
}

func (s *session) FetchPage(ctx context.Context, table string, where Where, pageNumber, pageSize int) ([]Row, error) {
	if pageSize <= 0 || pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	if pageNumber < 1 {
		pageNumber = 1
	}

	params := map[string]string{
		"q.pageNumber": strconv.Itoa(pageNumber),
		"q.pageSize":   strconv.Itoa(pageSize),
	}
	if !where.IsZero() {
		params["q.where"] = where.String()
	}

	start := time.Now()
	var out recordsResponse
	resp, err := s.client.http.R().
		SetContext(ctx).
		SetAuthToken(s.token).
		SetQueryParams(params).
		SetResult(&out).
		Get("/rest/v2/tables/" + url.PathEscape(table) + "/records")
	if err != nil {
		return nil, fmt.Errorf("fetch %s page %d: %w", table, pageNumber, err)
	}
	if resp.IsError() {
		return nil, &StatusError{Op: "records " + table, StatusCode: resp.StatusCode(), Body: resp.String()}
	}

	s.client.logger.Debug().
		Str("table", table).
		Int("page", pageNumber).
		Int("rows", len(out.Result)).
		Dur("latency", time.Since(start)).
		Msg("fetched page")

	return out.Result, nil
}
