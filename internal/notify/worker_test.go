package notify

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"

	"github.com/refind-app/refind/internal/engine"
	"github.com/refind-app/refind/internal/storage"
)

func enqueueNotifyJob(t *testing.T, s *storage.Store, matchID string) string {
	t.Helper()
	payload, err := json.Marshal(engine.NotifyPayload{MatchID: matchID})
	if err != nil {
		t.Fatalf("marshalling payload: %v", err)
	}
	job := storage.Job{
		ID:          uuid.New().String(),
		Type:        engine.JobTypeMatchNotify,
		PayloadJSON: string(payload),
	}
	if err := s.EnqueueJob(job); err != nil {
		t.Fatalf("EnqueueJob: %v", err)
	}
	return job.ID
}

func TestWorkerProcessesNotifyJob(t *testing.T) {
	s := openTestStore(t)
	m, _, _ := seedMatch(t, s)
	jobID := enqueueNotifyJob(t, s, m.ID)

	transport := &fakeTransport{}
	w := NewWorker(s, NewDispatcher(s, transport), 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected the job to be claimed")
	}

	if len(transport.sent) != 2 {
		t.Errorf("expected 2 sends, got %d", len(transport.sent))
	}
	got, err := s.GetMatch(m.ID)
	if err != nil {
		t.Fatalf("GetMatch: %v", err)
	}
	if !got.NotificationSent {
		t.Error("match should be flagged notified")
	}

	var status string
	if err := s.DB().QueryRow(`SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&status); err != nil {
		t.Fatalf("querying job: %v", err)
	}
	if status != "completed" {
		t.Errorf("job status = %q, want completed", status)
	}
}

func TestWorkerIdleWhenQueueEmpty(t *testing.T) {
	s := openTestStore(t)
	w := NewWorker(s, NewDispatcher(s, &fakeTransport{}), 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if done {
		t.Error("no job should be claimed from an empty queue")
	}
}

func TestWorkerFailedDispatchRequeuesJob(t *testing.T) {
	s := openTestStore(t)
	m, _, _ := seedMatch(t, s)
	jobID := enqueueNotifyJob(t, s, m.ID)

	transport := &fakeTransport{blocked: map[string]bool{
		"alex@example.com":  true,
		"robin@example.com": true,
	}}
	w := NewWorker(s, NewDispatcher(s, transport), 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected the job to be claimed")
	}

	got, _ := s.GetMatch(m.ID)
	if got.NotificationSent {
		t.Error("flag must stay false when delivery fails")
	}

	var status string
	var attempts int
	if err := s.DB().QueryRow(`SELECT status, attempts FROM jobs WHERE id = ?`, jobID).Scan(&status, &attempts); err != nil {
		t.Fatalf("querying job: %v", err)
	}
	if status != "pending" || attempts != 1 {
		t.Errorf("job = %q/%d, want pending with 1 attempt", status, attempts)
	}
}

func TestWorkerSkipsAlreadyNotifiedMatch(t *testing.T) {
	s := openTestStore(t)
	m, _, _ := seedMatch(t, s)
	if err := s.SetNotificationSent(m.ID, true); err != nil {
		t.Fatalf("SetNotificationSent: %v", err)
	}
	jobID := enqueueNotifyJob(t, s, m.ID)

	transport := &fakeTransport{}
	w := NewWorker(s, NewDispatcher(s, transport), 0)

	if _, err := w.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	if len(transport.sent) != 0 {
		t.Errorf("already-notified match must not resend, sent %d", len(transport.sent))
	}
	var status string
	if err := s.DB().QueryRow(`SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&status); err != nil {
		t.Fatalf("querying job: %v", err)
	}
	if status != "completed" {
		t.Errorf("duplicate job should complete cleanly, got %q", status)
	}
}

func TestWorkerCompletesJobForDeletedMatch(t *testing.T) {
	s := openTestStore(t)
	jobID := enqueueNotifyJob(t, s, "gone-lost:gone-found")

	transport := &fakeTransport{}
	w := NewWorker(s, NewDispatcher(s, transport), 0)

	done, err := w.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	if !done {
		t.Fatal("expected the job to be claimed")
	}

	if len(transport.sent) != 0 {
		t.Errorf("a job without a match must not send, sent %d", len(transport.sent))
	}
	var status string
	if err := s.DB().QueryRow(`SELECT status FROM jobs WHERE id = ?`, jobID).Scan(&status); err != nil {
		t.Fatalf("querying job: %v", err)
	}
	if status != "completed" {
		t.Errorf("job for a vanished match should complete, got %q", status)
	}
}
