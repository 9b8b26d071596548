package notify

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/shaiso/Montage/internal/mq"
)

func TestFormatEvent(t *testing.T) {
	projectID := uuid.New()

	tests := []struct {
		name     string
		event    mq.Event
		contains string
		empty    bool
	}{
		{
			name:     "project completed",
			event:    mq.Event{Type: mq.EventProjectCompleted, ProjectID: projectID, ProjectName: "documentary"},
			contains: `"documentary" completed`,
		},
		{
			name:     "step review includes position and name",
			event:    mq.Event{Type: mq.EventStepReview, ProjectName: "doc", Position: 3, StepName: "Script Review"},
			contains: "step 3 (Script Review)",
		},
		{
			name:     "step failed includes error",
			event:    mq.Event{Type: mq.EventStepFailed, ProjectName: "doc", Position: 2, StepName: "Fetch", Error: "timeout"},
			contains: "timeout",
		},
		{
			name:     "falls back to project id without name",
			event:    mq.Event{Type: mq.EventProjectFailed, ProjectID: projectID},
			contains: projectID.String(),
		},
		{
			name:  "step completed is silent",
			event: mq.Event{Type: mq.EventStepCompleted, ProjectName: "doc"},
			empty: true,
		},
		{
			name:  "unknown type is silent",
			event: mq.Event{Type: mq.EventType("project.archived")},
			empty: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatEvent(&tt.event)
			if tt.empty {
				if got != "" {
					t.Errorf("expected empty message, got %q", got)
				}
				return
			}
			if !strings.Contains(got, tt.contains) {
				t.Errorf("message %q does not contain %q", got, tt.contains)
			}
		})
	}
}

func TestHandleEventPostsWebhook(t *testing.T) {
	var received map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &received)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer server.Close()

	notifier := New(Config{WebhookURL: server.URL})

	delivery := &mq.Delivery{Event: mq.Event{
		Type:        mq.EventProjectCompleted,
		ProjectID:   uuid.New(),
		ProjectName: "shorts-batch",
	}}

	if err := notifier.HandleEvent(context.Background(), delivery); err != nil {
		t.Fatalf("handle event: %v", err)
	}

	if received == nil {
		t.Fatal("webhook was not called")
	}
	if !strings.Contains(received["content"], "shorts-batch") {
		t.Errorf("webhook content = %q, want project name", received["content"])
	}
}

func TestHandleEventWebhookError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	notifier := New(Config{WebhookURL: server.URL})

	delivery := &mq.Delivery{Event: mq.Event{
		Type:        mq.EventProjectFailed,
		ProjectID:   uuid.New(),
		ProjectName: "doc",
	}}

	if err := notifier.HandleEvent(context.Background(), delivery); err == nil {
		t.Error("expected error on HTTP 502")
	}
}

func TestHandleEventSilentTypesSkipWebhook(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	notifier := New(Config{WebhookURL: server.URL})

	delivery := &mq.Delivery{Event: mq.Event{
		Type:      mq.EventStepStarted,
		ProjectID: uuid.New(),
	}}

	if err := notifier.HandleEvent(context.Background(), delivery); err != nil {
		t.Fatalf("handle event: %v", err)
	}
	if called {
		t.Error("webhook called for a silent event type")
	}
}

func TestHandleEventNoWebhookConfigured(t *testing.T) {
	notifier := New(Config{})

	delivery := &mq.Delivery{Event: mq.Event{
		Type:        mq.EventProjectCompleted,
		ProjectID:   uuid.New(),
		ProjectName: "doc",
	}}

	if err := notifier.HandleEvent(context.Background(), delivery); err != nil {
		t.Errorf("log-only mode should not fail: %v", err)
	}
}
