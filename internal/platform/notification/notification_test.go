package notification

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/slack-go/slack"
)

func sampleVisit() FlaggedVisit {
	return FlaggedVisit{
		VisitID:      "v-1",
		MemberID:     "CL-1",
		MemberName:   "Bilbo Baggins",
		FacilityName: "Bag End Care",
		StaffName:    "Frodo Baggins",
		VisitDate:    time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC),
		TotalScore:   8,
		Reasons:      []string{"low_score", "action_required_concern"},
		Urgency:      "critical",
		Recipients: []Recipient{
			{Name: "Frodo Baggins", Email: "fbaggins@example.com"},
			{Name: "Samwise Gamgee"},
			{Email: "supervisor@example.com"},
		},
	}
}

func TestRender(t *testing.T) {
	got := Render("Hello {{name}}, {{missing}}", map[string]string{"name": "Sam"})
	if got != "Hello Sam, {{missing}}" {
		t.Errorf("unexpected render: %q", got)
	}
}

func TestMessage(t *testing.T) {
	subject, body := Message(sampleVisit())
	if subject != "[CRITICAL] Visit flagged for Bilbo Baggins at Bag End Care" {
		t.Errorf("unexpected subject: %q", subject)
	}
	for _, want := range []string{"2024-03-05", "Frodo Baggins", "low_score, action_required_concern", "Total score: 8", "v-1"} {
		if !strings.Contains(body, want) {
			t.Errorf("body missing %q:\n%s", want, body)
		}
	}
}

func TestEmailNotifier(t *testing.T) {
	sender := &MockEmailSender{}
	if err := NewEmailNotifier(sender).Notify(context.Background(), sampleVisit()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	calls := sender.Calls()
	if len(calls) != 1 {
		t.Fatalf("expected 1 email, got %d", len(calls))
	}
	if strings.Join(calls[0].To, ",") != "fbaggins@example.com,supervisor@example.com" {
		t.Errorf("unexpected recipients: %v", calls[0].To)
	}
}

func TestEmailNotifier_NoAddresses(t *testing.T) {
	sender := &MockEmailSender{}
	v := sampleVisit()
	v.Recipients = []Recipient{{Name: "Nobody"}}
	if err := NewEmailNotifier(sender).Notify(context.Background(), v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(sender.Calls()) != 0 {
		t.Error("expected no email without addresses")
	}
}

func TestDispatcher_JoinsErrors(t *testing.T) {
	ok := &MockNotifier{}
	bad := &MockNotifier{Err: errors.New("slack down")}
	d := NewDispatcher(time.Second, ok, nil, bad)
	if d.Len() != 2 {
		t.Fatalf("nil notifiers are skipped, got %d", d.Len())
	}

	err := d.Notify(context.Background(), sampleVisit())
	if err == nil || !strings.Contains(err.Error(), "slack down") {
		t.Fatalf("expected joined error, got %v", err)
	}
	if len(ok.Calls()) != 1 || len(bad.Calls()) != 1 {
		t.Error("every notifier is attempted even after a failure")
	}
}

type deadlineNotifier struct{ hadDeadline bool }

func (d *deadlineNotifier) Notify(ctx context.Context, _ FlaggedVisit) error {
	_, d.hadDeadline = ctx.Deadline()
	return nil
}

func TestDispatcher_AppliesTimeout(t *testing.T) {
	n := &deadlineNotifier{}
	if err := NewDispatcher(50*time.Millisecond, n).Notify(context.Background(), sampleVisit()); err != nil {
		t.Fatal(err)
	}
	if !n.hadDeadline {
		t.Error("expected per-notifier deadline")
	}
}

func TestSlackNotifier(t *testing.T) {
	var gotChannel, gotText string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = r.ParseForm()
		gotChannel = r.FormValue("channel")
		gotText = r.FormValue("text")
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"ok": true, "channel": gotChannel, "ts": "1700000000.000100"})
	}))
	defer srv.Close()

	n := NewSlackNotifier("xoxb-test", "C123", slack.OptionAPIURL(srv.URL+"/"))
	if err := n.Notify(context.Background(), sampleVisit()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if gotChannel != "C123" {
		t.Errorf("expected channel C123, got %q", gotChannel)
	}
	if !strings.Contains(gotText, "Visit flagged for Bilbo Baggins") || !strings.Contains(gotText, "Notified: Frodo Baggins, Samwise Gamgee, supervisor@example.com") {
		t.Errorf("unexpected text: %q", gotText)
	}
}

func TestSlackNotifier_APIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"ok":false,"error":"channel_not_found"}`))
	}))
	defer srv.Close()

	err := NewSlackNotifier("xoxb-test", "C404", slack.OptionAPIURL(srv.URL+"/")).Notify(context.Background(), sampleVisit())
	if err == nil || !strings.Contains(err.Error(), "channel_not_found") {
		t.Errorf("expected slack error, got %v", err)
	}
}

type fakeSES struct {
	input *ses.SendEmailInput
	err   error
}

func (f *fakeSES) SendEmail(_ context.Context, in *ses.SendEmailInput, _ ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.input = in
	return &ses.SendEmailOutput{}, f.err
}

func TestSESSender(t *testing.T) {
	client := &fakeSES{}
	s := NewSESSender(client, "alerts@example.com")
	if err := s.SendEmail(context.Background(), []string{"a@example.com"}, "subj", "body"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if *client.input.Source != "alerts@example.com" || client.input.Destination.ToAddresses[0] != "a@example.com" {
		t.Errorf("unexpected input: %+v", client.input)
	}
	if *client.input.Message.Subject.Data != "subj" || *client.input.Message.Body.Text.Data != "body" {
		t.Errorf("unexpected message: %+v", client.input.Message)
	}

	client.err = errors.New("throttled")
	if err := s.SendEmail(context.Background(), []string{"a@example.com"}, "s", "b"); err == nil {
		t.Error("expected error")
	}
}
