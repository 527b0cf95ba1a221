package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/notifications"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/outbox"
	"github.com/yw9142/ProjectBridge-sub000/services/collab-service/internal/push"
)

type stubTx struct {
	pgx.Tx
	commitErr error
	committed bool
}

func (t *stubTx) Commit(context.Context) error {
	if t.commitErr != nil {
		return t.commitErr
	}
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(context.Context) error { return nil }

type stubDB struct {
	tx *stubTx
}

func (d *stubDB) Begin(context.Context) (pgx.Tx, error) { return d.tx, nil }

type failedCall struct {
	id          int64
	attempts    int
	maxAttempts int
	reason      string
}

type fakeEventSource struct {
	records   []outbox.Record
	processed []int64
	failed    []failedCall
}

func (f *fakeEventSource) ClaimBatch(context.Context, pgx.Tx, int) ([]outbox.Record, error) {
	return f.records, nil
}

func (f *fakeEventSource) MarkProcessed(_ context.Context, _ pgx.Tx, ids []int64) error {
	f.processed = append(f.processed, ids...)
	return nil
}

func (f *fakeEventSource) MarkFailed(_ context.Context, _ pgx.Tx, id int64, attempts, maxAttempts int, reason string) error {
	f.failed = append(f.failed, failedCall{id: id, attempts: attempts, maxAttempts: maxAttempts, reason: reason})
	return nil
}

type fakeInbox struct {
	duplicates map[string]bool // eventID/userID pairs that already have a row
	inserted   []notifications.Notification
	seq        int
}

func (f *fakeInbox) Insert(_ context.Context, _ pgx.Tx, n notifications.Notification) (notifications.Notification, bool, error) {
	if f.duplicates[n.EventID+"/"+n.UserID] {
		return n, false, nil
	}
	f.seq++
	n.ID = fmt.Sprintf("n-%d", f.seq)
	n.CreatedAt = time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	f.inserted = append(f.inserted, n)
	return n, true, nil
}

type fakeResolver struct {
	recipients map[string][]string
	errs       map[string]error
}

func (f *fakeResolver) Resolve(_ context.Context, rcd outbox.Record, _ outbox.Envelope) ([]string, error) {
	if err := f.errs[rcd.EventID]; err != nil {
		return nil, err
	}
	return f.recipients[rcd.EventID], nil
}

func pendingRecord(id int64, eventID string, payload string) outbox.Record {
	return outbox.Record{
		ID:          id,
		EventID:     eventID,
		TenantID:    "t-1",
		EventType:   "post.created",
		Payload:     []byte(payload),
		MaxAttempts: 3,
	}
}

const validPayload = `{"title":"New post","message":"body","actor_user_id":"client-1"}`

// connectDrained registers a stream and consumes its connected event so the
// test only observes dispatch pushes.
func connectDrained(t *testing.T, registry *push.Registry, userID string) *push.Stream {
	t.Helper()
	s := registry.Connect(userID)
	select {
	case <-s.Events():
	default:
		t.Fatalf("expected connected event for %s", userID)
	}
	return s
}

func queuedEvents(s *push.Stream) []push.Event {
	var out []push.Event
	for {
		select {
		case e := <-s.Events():
			out = append(out, e)
		default:
			return out
		}
	}
}

func TestPoisonedEventDoesNotBlockBatch(t *testing.T) {
	source := &fakeEventSource{records: []outbox.Record{
		pendingRecord(1, "e-1", validPayload),
		pendingRecord(2, "e-2", `{broken`),
		pendingRecord(3, "e-3", validPayload),
	}}
	inbox := &fakeInbox{}
	resolver := &fakeResolver{recipients: map[string][]string{
		"e-1": {"op-1"},
		"e-3": {"op-1"},
	}}
	registry := push.NewRegistry(slog.Default())
	stream := connectDrained(t, registry, "op-1")
	tx := &stubTx{}

	w := NewWorker(&stubDB{tx: tx}, source, inbox, resolver, registry, slog.Default(), WorkerConfig{})
	if err := w.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch failed: %v", err)
	}

	if len(source.processed) != 2 || source.processed[0] != 1 || source.processed[1] != 3 {
		t.Fatalf("expected rows 1 and 3 processed, got %v", source.processed)
	}
	if len(source.failed) != 1 {
		t.Fatalf("expected 1 failed row, got %v", source.failed)
	}
	f := source.failed[0]
	if f.id != 2 || f.attempts != 1 || f.reason == "" {
		t.Fatalf("unexpected failure record: %+v", f)
	}
	if !tx.committed {
		t.Fatal("expected batch transaction to commit")
	}
	if got := len(queuedEvents(stream)); got != 2 {
		t.Fatalf("expected 2 pushes for surviving events, got %d", got)
	}
}

func TestFailedEventReachesMaxAttempts(t *testing.T) {
	rcd := pendingRecord(7, "e-7", validPayload)
	rcd.Attempts = 2
	source := &fakeEventSource{records: []outbox.Record{rcd}}
	resolver := &fakeResolver{errs: map[string]error{
		"e-7": errors.New("membership lookup failed"),
	}}
	tx := &stubTx{}

	w := NewWorker(&stubDB{tx: tx}, source, &fakeInbox{}, resolver, push.NewRegistry(slog.Default()), slog.Default(), WorkerConfig{})
	if err := w.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch failed: %v", err)
	}

	if len(source.failed) != 1 {
		t.Fatalf("expected 1 failed row, got %v", source.failed)
	}
	f := source.failed[0]
	if f.attempts != 3 || f.attempts < f.maxAttempts {
		t.Fatalf("expected attempts to reach max (3), got %+v", f)
	}
	if len(source.processed) != 0 {
		t.Fatalf("expected no processed rows, got %v", source.processed)
	}
}

func TestExistingRowProducesNoPush(t *testing.T) {
	source := &fakeEventSource{records: []outbox.Record{
		pendingRecord(1, "e-1", validPayload),
	}}
	inbox := &fakeInbox{duplicates: map[string]bool{"e-1/op-1": true}}
	resolver := &fakeResolver{recipients: map[string][]string{
		"e-1": {"op-1", "op-2"},
	}}
	registry := push.NewRegistry(slog.Default())
	first := connectDrained(t, registry, "op-1")
	second := connectDrained(t, registry, "op-2")

	w := NewWorker(&stubDB{tx: &stubTx{}}, source, inbox, resolver, registry, slog.Default(), WorkerConfig{})
	if err := w.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch failed: %v", err)
	}

	if len(source.processed) != 1 {
		t.Fatalf("expected the event processed despite the existing row, got %v", source.processed)
	}
	if len(inbox.inserted) != 1 || inbox.inserted[0].UserID != "op-2" {
		t.Fatalf("expected only op-2 row inserted, got %+v", inbox.inserted)
	}
	if got := len(queuedEvents(first)); got != 0 {
		t.Fatalf("expected no push for the pre-existing row, got %d", got)
	}
	if got := len(queuedEvents(second)); got != 1 {
		t.Fatalf("expected 1 push for the new row, got %d", got)
	}
}

func TestNoPushWhenCommitFails(t *testing.T) {
	source := &fakeEventSource{records: []outbox.Record{
		pendingRecord(1, "e-1", validPayload),
	}}
	resolver := &fakeResolver{recipients: map[string][]string{
		"e-1": {"op-1"},
	}}
	registry := push.NewRegistry(slog.Default())
	stream := connectDrained(t, registry, "op-1")
	tx := &stubTx{commitErr: errors.New("connection reset")}

	w := NewWorker(&stubDB{tx: tx}, source, &fakeInbox{}, resolver, registry, slog.Default(), WorkerConfig{})
	if err := w.processBatch(context.Background()); err == nil {
		t.Fatal("expected commit error to surface")
	}

	if got := len(queuedEvents(stream)); got != 0 {
		t.Fatalf("expected no pushes for an uncommitted batch, got %d", got)
	}
}

func TestEmptyRecipientSetIsTerminal(t *testing.T) {
	source := &fakeEventSource{records: []outbox.Record{
		pendingRecord(1, "e-1", validPayload),
	}}
	resolver := &fakeResolver{}
	tx := &stubTx{}

	w := NewWorker(&stubDB{tx: tx}, source, &fakeInbox{}, resolver, push.NewRegistry(slog.Default()), slog.Default(), WorkerConfig{})
	if err := w.processBatch(context.Background()); err != nil {
		t.Fatalf("processBatch failed: %v", err)
	}

	if len(source.processed) != 1 || source.processed[0] != 1 {
		t.Fatalf("expected the event marked processed, got %v", source.processed)
	}
	if len(source.failed) != 0 {
		t.Fatalf("expected no failure, got %v", source.failed)
	}
}

func TestWorkerConfigDefaults(t *testing.T) {
	w := NewWorker(nil, nil, nil, nil, nil, slog.Default(), WorkerConfig{})
	if w.interval != 1*time.Second {
		t.Fatalf("expected default 1s interval, got %s", w.interval)
	}
	if w.batchSize != 100 {
		t.Fatalf("expected default batch size 100, got %d", w.batchSize)
	}

	w = NewWorker(nil, nil, nil, nil, nil, slog.Default(), WorkerConfig{
		Interval:  250 * time.Millisecond,
		BatchSize: 10,
	})
	if w.interval != 250*time.Millisecond || w.batchSize != 10 {
		t.Fatalf("expected configured values, got %s / %d", w.interval, w.batchSize)
	}
}
