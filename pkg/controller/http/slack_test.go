package http_test

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	httpctrl "github.com/Dev-Marygold/Laffey/pkg/controller/http"
	"github.com/m-mizutani/gt"
	"github.com/slack-go/slack/slackevents"
)

const testSigningSecret = "test-signing-secret"

func computeSlackSignature(signingSecret, timestamp, body string) string {
	h := hmac.New(sha256.New, []byte(signingSecret))
	h.Write([]byte(fmt.Sprintf("v0:%s:%s", timestamp, body)))
	return "v0=" + hex.EncodeToString(h.Sum(nil))
}

func signedRequest(t *testing.T, body string) *http.Request {
	t.Helper()
	timestamp := strconv.FormatInt(time.Now().Unix(), 10)
	req := httptest.NewRequest(http.MethodPost, "/hooks/slack/event", bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Slack-Request-Timestamp", timestamp)
	req.Header.Set("X-Slack-Signature", computeSlackSignature(testSigningSecret, timestamp, body))
	return req
}

type recordingHandler struct {
	mu     sync.Mutex
	events []*slackevents.EventsAPIEvent
	called chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{called: make(chan struct{}, 10)}
}

func (h *recordingHandler) HandleSlackEvent(ctx context.Context, event *slackevents.EventsAPIEvent) error {
	h.mu.Lock()
	h.events = append(h.events, event)
	h.mu.Unlock()
	h.called <- struct{}{}
	return nil
}

func (h *recordingHandler) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.events)
}

func TestVerifySlackSignature(t *testing.T) {
	body := []byte(`{"type":"url_verification","challenge":"test"}`)
	now := strconv.FormatInt(time.Now().Unix(), 10)

	testCases := []struct {
		name      string
		timestamp string
		signature string
		wantErr   bool
	}{
		{
			name:      "valid signature",
			timestamp: now,
			signature: computeSlackSignature(testSigningSecret, now, string(body)),
		},
		{
			name:      "invalid signature",
			timestamp: now,
			signature: "v0=invalid_signature",
			wantErr:   true,
		},
		{
			name:      "missing timestamp",
			timestamp: "",
			signature: computeSlackSignature(testSigningSecret, "123456", string(body)),
			wantErr:   true,
		},
		{
			name:      "missing signature",
			timestamp: now,
			wantErr:   true,
		},
		{
			name:      "timestamp too old",
			timestamp: strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10),
			signature: computeSlackSignature(testSigningSecret, strconv.FormatInt(time.Now().Add(-10*time.Minute).Unix(), 10), string(body)),
			wantErr:   true,
		},
		{
			name:      "invalid timestamp format",
			timestamp: "not-a-number",
			signature: computeSlackSignature(testSigningSecret, "not-a-number", string(body)),
			wantErr:   true,
		},
		{
			name:      "wrong secret",
			timestamp: now,
			signature: computeSlackSignature("wrong-secret", now, string(body)),
			wantErr:   true,
		},
		{
			name:      "different body",
			timestamp: now,
			signature: computeSlackSignature(testSigningSecret, now, "different body"),
			wantErr:   true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := httpctrl.VerifySlackSignature(testSigningSecret, tc.timestamp, tc.signature, body)
			if tc.wantErr {
				gt.Error(t, err)
			} else {
				gt.NoError(t, err)
			}
		})
	}
}

func TestSlackSignatureMiddleware(t *testing.T) {
	body := `{"type":"url_verification","challenge":"test"}`

	t.Run("valid signature reaches next with the body restored", func(t *testing.T) {
		var received string
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			buf := new(bytes.Buffer)
			_, _ = buf.ReadFrom(r.Body)
			received = buf.String()
			w.WriteHeader(http.StatusOK)
		})

		rec := httptest.NewRecorder()
		httpctrl.SlackSignatureMiddleware(testSigningSecret)(next).ServeHTTP(rec, signedRequest(t, body))

		gt.Value(t, rec.Code).Equal(http.StatusOK)
		gt.Value(t, received).Equal(body)
	})

	t.Run("invalid signature is rejected", func(t *testing.T) {
		nextCalled := false
		next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			nextCalled = true
		})

		req := signedRequest(t, body)
		req.Header.Set("X-Slack-Signature", "v0=invalid")
		rec := httptest.NewRecorder()
		httpctrl.SlackSignatureMiddleware(testSigningSecret)(next).ServeHTTP(rec, req)

		gt.Bool(t, nextCalled).False()
		gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)
	})
}

func TestSlackWebhook(t *testing.T) {
	newServer := func(h httpctrl.SlackEventHandler) *httpctrl.Server {
		return httpctrl.New(httpctrl.WithSlackWebhook(httpctrl.NewSlackWebhookHandler(h), testSigningSecret))
	}

	t.Run("URL verification echoes the challenge", func(t *testing.T) {
		h := newRecordingHandler()
		rec := httptest.NewRecorder()
		newServer(h).ServeHTTP(rec, signedRequest(t, `{"type":"url_verification","challenge":"test-challenge-token"}`))

		gt.Value(t, rec.Code).Equal(http.StatusOK)
		gt.Value(t, rec.Body.String()).Equal("test-challenge-token")
		gt.Value(t, h.count()).Equal(0)
	})

	callback := `{
		"token": "test-token",
		"team_id": "T123",
		"api_app_id": "A123",
		"type": "event_callback",
		"event_id": "Ev123",
		"event_time": 1700000000,
		"event": {
			"type": "app_mention",
			"user": "U123",
			"text": "<@UBOT> hello",
			"ts": "1700000000.000100",
			"channel": "C123",
			"event_ts": "1700000000.000100"
		}
	}`

	t.Run("callback is acknowledged and handled in the background", func(t *testing.T) {
		h := newRecordingHandler()
		rec := httptest.NewRecorder()
		newServer(h).ServeHTTP(rec, signedRequest(t, callback))
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		select {
		case <-h.called:
		case <-time.After(2 * time.Second):
			t.Fatal("event was not handled")
		}

		h.mu.Lock()
		defer h.mu.Unlock()
		mention, ok := h.events[0].InnerEvent.Data.(*slackevents.AppMentionEvent)
		if !ok {
			t.Fatalf("unexpected inner event: %T", h.events[0].InnerEvent.Data)
		}
		gt.Value(t, mention.User).Equal("U123")
		gt.Value(t, mention.Channel).Equal("C123")
	})

	t.Run("retries are acknowledged and dropped", func(t *testing.T) {
		h := newRecordingHandler()
		req := signedRequest(t, callback)
		req.Header.Set("X-Slack-Retry-Num", "1")
		req.Header.Set("X-Slack-Retry-Reason", "http_timeout")

		rec := httptest.NewRecorder()
		newServer(h).ServeHTTP(rec, req)
		gt.Value(t, rec.Code).Equal(http.StatusOK)

		select {
		case <-h.called:
			t.Fatal("retry must not be handled")
		case <-time.After(100 * time.Millisecond):
		}
	})

	t.Run("unsigned request is rejected", func(t *testing.T) {
		h := newRecordingHandler()
		req := httptest.NewRequest(http.MethodPost, "/hooks/slack/event", bytes.NewReader([]byte(callback)))
		rec := httptest.NewRecorder()
		newServer(h).ServeHTTP(rec, req)
		gt.Value(t, rec.Code).Equal(http.StatusUnauthorized)
	})

	t.Run("malformed body is a bad request", func(t *testing.T) {
		h := newRecordingHandler()
		rec := httptest.NewRecorder()
		newServer(h).ServeHTTP(rec, signedRequest(t, `not json`))
		gt.Value(t, rec.Code).Equal(http.StatusBadRequest)
	})
}
