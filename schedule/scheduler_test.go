package schedule_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/flowtidehq/flowtide/id"
	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/queue"
	"github.com/flowtidehq/flowtide/schedule"
	"github.com/flowtidehq/flowtide/store/memory"
)

// stubEmitter records EmitScheduleFired calls.
type stubEmitter struct {
	mu    sync.Mutex
	calls []firedCall
}

type firedCall struct {
	EntryKey string
	JobID    id.JobID
}

func (e *stubEmitter) EmitScheduleFired(_ context.Context, entryKey string, jobID id.JobID) {
	e.mu.Lock()
	e.calls = append(e.calls, firedCall{EntryKey: entryKey, JobID: jobID})
	e.mu.Unlock()
}

func (e *stubEmitter) getCalls() []firedCall {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]firedCall, len(e.calls))
	copy(out, e.calls)
	return out
}

// enqueueSpy tracks enqueue calls with thread safety.
type enqueueSpy struct {
	mu    sync.Mutex
	calls []enqueueCall
}

type enqueueCall struct {
	Kind    job.Kind
	Payload []byte
	Opts    []job.Option
}

func (e *enqueueSpy) Fn() schedule.EnqueueFunc {
	return func(_ context.Context, kind job.Kind, payload []byte, opts ...job.Option) (id.JobID, error) {
		e.mu.Lock()
		e.calls = append(e.calls, enqueueCall{Kind: kind, Payload: payload, Opts: opts})
		e.mu.Unlock()
		return id.NewJobID(), nil
	}
}

func (e *enqueueSpy) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.calls)
}

func (e *enqueueSpy) Kinds() []job.Kind {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]job.Kind, len(e.calls))
	for i, c := range e.calls {
		out[i] = c.Kind
	}
	return out
}

func registerDueEntry(t *testing.T, s *memory.Store, key string, kind job.Kind) *schedule.Entry {
	t.Helper()

	past := time.Now().UTC().Add(-1 * time.Second)
	entry := &schedule.Entry{
		ID:        id.NewScheduleID(),
		Key:       key,
		Schedule:  "@every 1s",
		Kind:      kind,
		Queue:     queue.Analysis,
		Payload:   []byte(`{"organization_id":"org_1"}`),
		OrgID:     "org_1",
		NextRunAt: &past,
		Enabled:   true,
	}

	if err := s.UpsertEntry(context.Background(), entry); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}
	return entry
}

func newTestScheduler(t *testing.T) (*schedule.Scheduler, *memory.Store, *stubEmitter, *enqueueSpy) {
	t.Helper()

	s := memory.New()
	emitter := &stubEmitter{}
	spy := &enqueueSpy{}

	sched := schedule.NewScheduler(
		s, spy.Fn(), emitter, id.NewWorkerID(), nil,
		schedule.WithTickInterval(50*time.Millisecond),
	)
	return sched, s, emitter, spy
}

func waitForFire(t *testing.T, spy *enqueueSpy) {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for spy.Count() == 0 {
		select {
		case <-deadline:
			t.Fatal("timed out waiting for the schedule to fire")
		default:
			time.Sleep(20 * time.Millisecond)
		}
	}
}

// ──────────────────────────────────────────────────
// Tests
// ──────────────────────────────────────────────────

func TestScheduler_FiresDueEntry(t *testing.T) {
	sched, s, emitter, spy := newTestScheduler(t)

	registerDueEntry(t, s, "bottleneck_detection:org_1", job.KindBottleneckDetection)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForFire(t, spy)
	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	kinds := spy.Kinds()
	if kinds[0] != job.KindBottleneckDetection {
		t.Errorf("enqueued kind = %q, want %q", kinds[0], job.KindBottleneckDetection)
	}

	calls := emitter.getCalls()
	if len(calls) == 0 {
		t.Fatal("expected at least one EmitScheduleFired call")
	}
	if calls[0].EntryKey != "bottleneck_detection:org_1" {
		t.Errorf("emitter entry key = %q, want bottleneck_detection:org_1", calls[0].EntryKey)
	}
}

func TestScheduler_SkipsDisabled(t *testing.T) {
	sched, s, _, spy := newTestScheduler(t)

	entry := registerDueEntry(t, s, "predictions:org_1", job.KindPredictions)
	entry.Enabled = false
	if err := s.UpsertEntry(context.Background(), entry); err != nil {
		t.Fatalf("UpsertEntry: %v", err)
	}

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if spy.Count() != 0 {
		t.Errorf("expected 0 enqueue calls for disabled entry, got %d", spy.Count())
	}
}

func TestScheduler_AdvancesNextRunAt(t *testing.T) {
	sched, s, _, spy := newTestScheduler(t)

	registerDueEntry(t, s, "sync:org_1:github", job.KindSync)

	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	waitForFire(t, spy)
	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	updated, err := s.GetEntry(context.Background(), "sync:org_1:github")
	if err != nil {
		t.Fatalf("GetEntry: %v", err)
	}
	if updated.NextRunAt == nil {
		t.Fatal("expected NextRunAt to be set")
	}
	if updated.NextRunAt.Before(time.Now().UTC().Add(-2 * time.Second)) {
		t.Errorf("NextRunAt = %v, expected recent/future time", updated.NextRunAt)
	}
	if updated.LastRunAt == nil {
		t.Error("expected LastRunAt to be set after firing")
	}
}

func TestScheduler_LockPreventsDoubleFire(t *testing.T) {
	s := memory.New()
	emitter := &stubEmitter{}
	spy := &enqueueSpy{}

	registerDueEntry(t, s, "locked:org_1", job.KindBottleneckDetection)

	// A rival scheduler process holds the entry lock.
	acquired, err := s.AcquireEntryLock(context.Background(), "locked:org_1", "rival-worker", time.Minute)
	if err != nil || !acquired {
		t.Fatalf("AcquireEntryLock: acquired=%v err=%v", acquired, err)
	}

	sched := schedule.NewScheduler(
		s, spy.Fn(), emitter, id.NewWorkerID(), nil,
		schedule.WithTickInterval(50*time.Millisecond),
	)
	if err := sched.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	time.Sleep(300 * time.Millisecond)
	if err := sched.Stop(context.Background()); err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if spy.Count() != 0 {
		t.Errorf("locked entry fired %d times, want 0", spy.Count())
	}
}

func TestParseSchedule(t *testing.T) {
	t.Parallel()

	tests := []struct {
		expr    string
		wantErr bool
	}{
		{"@every 15m", false},
		{"30 0 * * *", false},
		{"0 6 * * 1,2,3,4,5", false},
		{"not a cron", true},
		{"* * * * * *", true}, // six fields: seconds are not supported
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			_, err := schedule.ParseSchedule(tt.expr)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseSchedule(%q) error = %v, wantErr %v", tt.expr, err, tt.wantErr)
			}
		})
	}
}
