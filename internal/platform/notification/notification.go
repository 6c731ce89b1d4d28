// Package notification alerts people about flagged visits over Slack, email
// and signed webhooks. Delivery is best-effort: callers log failures and move on.
package notification

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Recipient is a person to alert.
type Recipient struct {
	Name  string `json:"name,omitempty"`
	Email string `json:"email"`
}

// FlaggedVisit is everything an alert needs to describe a flagged visit.
type FlaggedVisit struct {
	VisitID      string      `json:"visit_id"`
	MemberID     string      `json:"member_id"`
	MemberName   string      `json:"member_name"`
	FacilityName string      `json:"facility_name"`
	StaffName    string      `json:"staff_name"`
	StaffEmail   string      `json:"staff_email,omitempty"`
	VisitDate    time.Time   `json:"visit_date"`
	TotalScore   int         `json:"total_score"`
	Reasons      []string    `json:"reasons"`
	Urgency      string      `json:"urgency"`
	Recipients   []Recipient `json:"recipients"`
}

type Notifier interface {
	Notify(ctx context.Context, v FlaggedVisit) error
}

// EmailSender is the interface for sending email messages.
type EmailSender interface {
	SendEmail(ctx context.Context, to []string, subject, body string) error
}

// ---------------------------------------------------------------------------
// Templates
// ---------------------------------------------------------------------------

const (
	flaggedSubject = "[{{urgency}}] Visit flagged for {{member_name}} at {{facility}}"
	flaggedBody    = "A visit on {{visit_date}} by {{staff}} for {{member_name}} ({{member_id}}) at {{facility}} was flagged.\n" +
		"Reasons: {{reasons}}\nTotal score: {{score}}\nVisit id: {{visit_id}}"
)

// Render performs {{key}} replacement. Keys absent from data are left as-is.
func Render(tpl string, data map[string]string) string {
	pairs := make([]string, 0, len(data)*2)
	keys := make([]string, 0, len(data))
	for k := range data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		pairs = append(pairs, "{{"+k+"}}", data[k])
	}
	return strings.NewReplacer(pairs...).Replace(tpl)
}

func templateData(v FlaggedVisit) map[string]string {
	staff := v.StaffName
	if staff == "" {
		staff = v.StaffEmail
	}
	return map[string]string{
		"urgency":     strings.ToUpper(v.Urgency),
		"member_name": v.MemberName,
		"member_id":   v.MemberID,
		"facility":    v.FacilityName,
		"visit_date":  v.VisitDate.Format("2006-01-02"),
		"staff":       staff,
		"reasons":     strings.Join(v.Reasons, ", "),
		"score":       fmt.Sprintf("%d", v.TotalScore),
		"visit_id":    v.VisitID,
	}
}

// Message renders the subject and body of the alert for v.
func Message(v FlaggedVisit) (subject, body string) {
	data := templateData(v)
	return Render(flaggedSubject, data), Render(flaggedBody, data)
}

// ---------------------------------------------------------------------------
// Email
// ---------------------------------------------------------------------------

// EmailNotifier mails the rendered alert to every recipient with an address.
type EmailNotifier struct {
	sender EmailSender
}

func NewEmailNotifier(sender EmailSender) *EmailNotifier {
	return &EmailNotifier{sender: sender}
}

func (n *EmailNotifier) Notify(ctx context.Context, v FlaggedVisit) error {
	var to []string
	for _, r := range v.Recipients {
		if r.Email != "" {
			to = append(to, r.Email)
		}
	}
	if len(to) == 0 {
		return nil
	}
	subject, body := Message(v)
	if err := n.sender.SendEmail(ctx, to, subject, body); err != nil {
		return fmt.Errorf("email flagged visit %s: %w", v.VisitID, err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Dispatcher
// ---------------------------------------------------------------------------

// Dispatcher fans an alert out to every configured channel, each under its
// own timeout, and joins the failures.
type Dispatcher struct {
	notifiers []Notifier
	timeout   time.Duration
}

func NewDispatcher(timeout time.Duration, notifiers ...Notifier) *Dispatcher {
	var active []Notifier
	for _, n := range notifiers {
		if n != nil {
			active = append(active, n)
		}
	}
	return &Dispatcher{notifiers: active, timeout: timeout}
}

func (d *Dispatcher) Len() int { return len(d.notifiers) }

func (d *Dispatcher) Notify(ctx context.Context, v FlaggedVisit) error {
	var errs []error
	for _, n := range d.notifiers {
		nctx, cancel := ctx, context.CancelFunc(func() {})
		if d.timeout > 0 {
			nctx, cancel = context.WithTimeout(ctx, d.timeout)
		}
		if err := n.Notify(nctx, v); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}
	return errors.Join(errs...)
}

// ---------------------------------------------------------------------------
// Mock (test double)
// ---------------------------------------------------------------------------

// MockNotifier records alerts and optionally fails.
type MockNotifier struct {
	mu    sync.Mutex
	calls []FlaggedVisit
	Err   error
}

func (m *MockNotifier) Notify(_ context.Context, v FlaggedVisit) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, v)
	return m.Err
}

// Calls returns a copy of recorded alerts.
func (m *MockNotifier) Calls() []FlaggedVisit {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]FlaggedVisit, len(m.calls))
	copy(out, m.calls)
	return out
}

// EmailCall records a single call to SendEmail.
type EmailCall struct {
	To      []string
	Subject string
	Body    string
}

// MockEmailSender is a test double for EmailSender.
type MockEmailSender struct {
	mu    sync.Mutex
	calls []EmailCall
	Err   error
}

func (m *MockEmailSender) SendEmail(_ context.Context, to []string, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, EmailCall{To: to, Subject: subject, Body: body})
	return m.Err
}

func (m *MockEmailSender) Calls() []EmailCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]EmailCall, len(m.calls))
	copy(out, m.calls)
	return out
}
