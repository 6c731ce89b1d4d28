package notification

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignPayload_RoundTrip(t *testing.T) {
	payload := []byte(`{"id":"1"}`)
	sig := SignPayload(payload, "s3cret")

	assert.True(t, VerifySignature(payload, "s3cret", sig))
	assert.True(t, VerifySignature(payload, "s3cret", "sha256="+sig))
	assert.False(t, VerifySignature(payload, "other", sig))
	assert.False(t, VerifySignature([]byte(`{"id":"2"}`), "s3cret", sig))
}

func TestWebhookNotifier_SignedDelivery(t *testing.T) {
	var got WebhookEvent
	var valid bool
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		valid = VerifySignature(body, "s3cret", r.Header.Get(SignatureHeader))
		_ = json.Unmarshal(body, &got)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "s3cret", time.Second, 0)
	err := n.Notify(context.Background(), FlaggedVisit{VisitID: "v-1", MemberID: "M1", Reasons: []string{"critical"}})
	require.NoError(t, err)

	assert.True(t, valid)
	assert.Equal(t, EventVisitFlagged, got.Type)
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, "v-1", got.Visit.VisitID)
}

func TestWebhookNotifier_RetriesServerErrors(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&hits, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "", time.Second, 3)
	n.wait = time.Millisecond

	require.NoError(t, n.Notify(context.Background(), FlaggedVisit{VisitID: "v-1"}))
	assert.Equal(t, int32(3), atomic.LoadInt32(&hits))
}

func TestWebhookNotifier_ClientErrorNotRetried(t *testing.T) {
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	n := NewWebhookNotifier(srv.URL, "", time.Second, 3)
	n.wait = time.Millisecond

	err := n.Notify(context.Background(), FlaggedVisit{VisitID: "v-1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
	assert.Equal(t, int32(1), atomic.LoadInt32(&hits))
}
