package handler_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/bottleneck"
	"github.com/flowtidehq/flowtide/breaker"
	"github.com/flowtidehq/flowtide/directory"
	"github.com/flowtidehq/flowtide/handler"
	"github.com/flowtidehq/flowtide/job"
	"github.com/flowtidehq/flowtide/store/memory"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// ──────────────────────────────────────────────────
// Fakes
// ──────────────────────────────────────────────────

type fakeSyncClient struct {
	result SyncCall
	err    error
	calls  int
}

type SyncCall struct {
	OrgID, IntegrationID, Provider string
}

func (f *fakeSyncClient) Sync(_ context.Context, orgID, integrationID, provider string) (handler.SyncResult, error) {
	f.calls++
	f.result = SyncCall{orgID, integrationID, provider}
	if f.err != nil {
		return handler.SyncResult{}, f.err
	}
	return handler.SyncResult{ItemsSynced: 42}, nil
}

type fakeGenerator struct {
	text  string
	err   error
	calls int
}

func (f *fakeGenerator) GenerateBriefing(context.Context, string) (string, error) {
	f.calls++
	return f.text, f.err
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (f *fakeNotifier) Send(_ context.Context, _ string, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, message)
	return nil
}

type fakeChecker struct {
	warnings []string
	err      error
}

func (f *fakeChecker) CheckMilestones(context.Context, string) ([]string, error) {
	return f.warnings, f.err
}

// ──────────────────────────────────────────────────
// Quiet hours
// ──────────────────────────────────────────────────

func TestHourWindowQuiet(t *testing.T) {
	t.Parallel()

	at := func(utcHour int) time.Time {
		return time.Date(2026, 3, 14, utcHour, 30, 0, 0, time.UTC)
	}

	tests := []struct {
		name string
		org  directory.Organization
		at   time.Time
		want bool
	}{
		{
			name: "disabled window",
			org:  directory.Organization{QuietStartHour: 0, QuietEndHour: 0},
			at:   at(3),
			want: false,
		},
		{
			name: "inside simple window",
			org:  directory.Organization{QuietStartHour: 9, QuietEndHour: 17},
			at:   at(12),
			want: true,
		},
		{
			name: "outside simple window",
			org:  directory.Organization{QuietStartHour: 9, QuietEndHour: 17},
			at:   at(18),
			want: false,
		},
		{
			name: "end hour is exclusive",
			org:  directory.Organization{QuietStartHour: 9, QuietEndHour: 17},
			at:   at(17),
			want: false,
		},
		{
			name: "window wrapping midnight, late evening",
			org:  directory.Organization{QuietStartHour: 22, QuietEndHour: 7},
			at:   at(23),
			want: true,
		},
		{
			name: "window wrapping midnight, early morning",
			org:  directory.Organization{QuietStartHour: 22, QuietEndHour: 7},
			at:   at(6),
			want: true,
		},
		{
			name: "window wrapping midnight, daytime",
			org:  directory.Organization{QuietStartHour: 22, QuietEndHour: 7},
			at:   at(12),
			want: false,
		},
		{
			name: "utc offset shifts local hour into window",
			org:  directory.Organization{QuietStartHour: 22, QuietEndHour: 7, UTCOffsetHours: 3},
			at:   at(20), // local 23
			want: true,
		},
		{
			name: "negative offset shifts local hour out of window",
			org:  directory.Organization{QuietStartHour: 22, QuietEndHour: 7, UTCOffsetHours: -5},
			at:   at(23), // local 18
			want: false,
		},
	}

	var window handler.HourWindow
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := window.Quiet(&tt.org, tt.at); got != tt.want {
				t.Fatalf("Quiet = %v, want %v", got, tt.want)
			}
		})
	}
}

// ──────────────────────────────────────────────────
// Sync handler
// ──────────────────────────────────────────────────

func seedSyncFixture(t *testing.T) (*memory.Store, job.SyncPayload) {
	t.Helper()
	s := memory.New()
	s.PutOrganization(&directory.Organization{ID: "org_1", Name: "Acme"})
	s.PutIntegration(&directory.Integration{
		ID: "int_1", OrgID: "org_1", Kind: directory.KindTracker,
		Provider: "linear", Status: directory.StatusConnected,
	})
	return s, job.SyncPayload{OrgID: "org_1", IntegrationID: "int_1", Provider: "linear"}
}

func TestSyncHandlerCallsClient(t *testing.T) {
	t.Parallel()

	s, payload := seedSyncFixture(t)
	client := &fakeSyncClient{}
	h := handler.NewSyncHandler(client, s, breaker.NewRegistry(breaker.WithRegistryLogger(quietLogger())), quietLogger())

	if err := h.HandleSync(context.Background(), payload); err != nil {
		t.Fatalf("HandleSync: %v", err)
	}
	if client.calls != 1 {
		t.Fatalf("client called %d times, want 1", client.calls)
	}
	if client.result.Provider != "linear" || client.result.OrgID != "org_1" {
		t.Fatalf("client called with %+v", client.result)
	}
}

func TestSyncHandlerMissingIntegrationIsPermanent(t *testing.T) {
	t.Parallel()

	s, payload := seedSyncFixture(t)
	payload.IntegrationID = "int_missing"
	client := &fakeSyncClient{}
	h := handler.NewSyncHandler(client, s, breaker.NewRegistry(breaker.WithRegistryLogger(quietLogger())), quietLogger())

	err := h.HandleSync(context.Background(), payload)
	if !errors.Is(err, flowtide.ErrPermanent) {
		t.Fatalf("got %v, want permanent error", err)
	}
	if client.calls != 0 {
		t.Fatal("client must not be called for a missing integration")
	}
}

func TestSyncHandlerSkipsDisconnected(t *testing.T) {
	t.Parallel()

	s, payload := seedSyncFixture(t)
	s.PutIntegration(&directory.Integration{
		ID: "int_1", OrgID: "org_1", Kind: directory.KindTracker,
		Provider: "linear", Status: directory.StatusDisconnected,
	})
	client := &fakeSyncClient{}
	h := handler.NewSyncHandler(client, s, breaker.NewRegistry(breaker.WithRegistryLogger(quietLogger())), quietLogger())

	if err := h.HandleSync(context.Background(), payload); err != nil {
		t.Fatalf("HandleSync: %v", err)
	}
	if client.calls != 0 {
		t.Fatal("client must not be called for a disconnected integration")
	}
}

func TestSyncHandlerChatIntegrationIsPermanent(t *testing.T) {
	t.Parallel()

	s, payload := seedSyncFixture(t)
	s.PutIntegration(&directory.Integration{
		ID: "int_1", OrgID: "org_1", Kind: directory.KindChat,
		Provider: "slack", Status: directory.StatusConnected,
	})
	h := handler.NewSyncHandler(&fakeSyncClient{}, s, breaker.NewRegistry(breaker.WithRegistryLogger(quietLogger())), quietLogger())

	if err := h.HandleSync(context.Background(), payload); !errors.Is(err, flowtide.ErrPermanent) {
		t.Fatalf("got %v, want permanent error for chat integration", err)
	}
}

// ──────────────────────────────────────────────────
// Heartbeat handler
// ──────────────────────────────────────────────────

func newHeartbeatFixture(t *testing.T, org *directory.Organization, now time.Time) (
	*handler.HeartbeatHandler, *fakeGenerator, *fakeNotifier,
) {
	t.Helper()
	s := memory.New()
	s.PutOrganization(org)
	gen := &fakeGenerator{text: "Your daily briefing"}
	notifier := &fakeNotifier{}
	h := handler.NewHeartbeatHandler(
		gen, notifier, handler.HourWindow{}, s,
		breaker.NewRegistry(breaker.WithRegistryLogger(quietLogger())),
		quietLogger(),
		handler.WithHeartbeatClock(func() time.Time { return now }),
	)
	return h, gen, notifier
}

func TestDailyBriefingDelivered(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	h, gen, notifier := newHeartbeatFixture(t, &directory.Organization{ID: "org_1"}, now)

	if err := h.HandleDailyBriefing(context.Background(), job.OrgPayload{OrgID: "org_1"}); err != nil {
		t.Fatalf("HandleDailyBriefing: %v", err)
	}
	if gen.calls != 1 {
		t.Fatalf("generator called %d times, want 1", gen.calls)
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != "Your daily briefing" {
		t.Fatalf("sent %v, want the generated briefing", notifier.sent)
	}
}

func TestDailyBriefingSuppressedByQuietHours(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	org := &directory.Organization{ID: "org_1", QuietStartHour: 22, QuietEndHour: 7}
	h, gen, notifier := newHeartbeatFixture(t, org, now)

	if err := h.HandleDailyBriefing(context.Background(), job.OrgPayload{OrgID: "org_1"}); err != nil {
		t.Fatalf("HandleDailyBriefing: %v", err)
	}
	if gen.calls != 0 || len(notifier.sent) != 0 {
		t.Fatal("quiet hours must suppress generation and delivery")
	}
}

func TestForceBriefingIgnoresQuietHours(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	org := &directory.Organization{ID: "org_1", QuietStartHour: 22, QuietEndHour: 7}
	h, gen, notifier := newHeartbeatFixture(t, org, now)

	if err := h.HandleForceBriefing(context.Background(), job.OrgPayload{OrgID: "org_1"}); err != nil {
		t.Fatalf("HandleForceBriefing: %v", err)
	}
	if gen.calls != 1 || len(notifier.sent) != 1 {
		t.Fatal("forced briefing must bypass quiet hours")
	}
}

func TestBriefingUnknownOrgIsPermanent(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC)
	h, _, _ := newHeartbeatFixture(t, &directory.Organization{ID: "org_1"}, now)

	err := h.HandleDailyBriefing(context.Background(), job.OrgPayload{OrgID: "org_gone"})
	if !errors.Is(err, flowtide.ErrPermanent) {
		t.Fatalf("got %v, want permanent error", err)
	}
}

func TestBlockerAlertSuppressedByQuietHours(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 23, 0, 0, 0, time.UTC)
	org := &directory.Organization{ID: "org_1", QuietStartHour: 22, QuietEndHour: 7}
	h, _, notifier := newHeartbeatFixture(t, org, now)

	p := job.AlertPayload{OrgID: "org_1", EntityID: "task_1", Message: "Task blocked"}
	if err := h.HandleBlockerAlert(context.Background(), p); err != nil {
		t.Fatalf("HandleBlockerAlert: %v", err)
	}
	if len(notifier.sent) != 0 {
		t.Fatal("alert must be suppressed inside quiet hours")
	}
}

func TestRiskAlertDelivered(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	h, _, notifier := newHeartbeatFixture(t, &directory.Organization{ID: "org_1"}, now)

	p := job.AlertPayload{OrgID: "org_1", Message: "Milestone at risk"}
	if err := h.HandleRiskAlert(context.Background(), p); err != nil {
		t.Fatalf("HandleRiskAlert: %v", err)
	}
	if len(notifier.sent) != 1 || notifier.sent[0] != "Milestone at risk" {
		t.Fatalf("sent %v", notifier.sent)
	}
}

// ──────────────────────────────────────────────────
// Progress handler
// ──────────────────────────────────────────────────

func TestProgressSnapshotCounts(t *testing.T) {
	t.Parallel()

	s := memory.New()
	now := time.Date(2026, 3, 14, 0, 30, 0, 0, time.UTC)
	s.PutOrganization(&directory.Organization{ID: "org_1"})
	s.PutTask(&bottleneck.Task{ID: "t1", OrgID: "org_1", Status: bottleneck.TaskDone})
	s.PutTask(&bottleneck.Task{ID: "t2", OrgID: "org_1", Status: bottleneck.TaskDone})
	s.PutTask(&bottleneck.Task{ID: "t3", OrgID: "org_1", Status: bottleneck.TaskInProgress})
	s.PutTask(&bottleneck.Task{ID: "t4", OrgID: "org_1", Status: bottleneck.TaskTodo, BlockedByIDs: []string{"t3"}})

	h := handler.NewProgressHandler(
		s, s, s, &fakeChecker{}, &fakeNotifier{},
		breaker.NewRegistry(breaker.WithRegistryLogger(quietLogger())),
		quietLogger(),
		handler.WithProgressClock(func() time.Time { return now }),
	)

	if err := h.HandleProgressSnapshot(context.Background(), job.OrgPayload{OrgID: "org_1"}); err != nil {
		t.Fatalf("HandleProgressSnapshot: %v", err)
	}

	snap, ok := s.GetProgressSnapshot("org_1", now.Truncate(24*time.Hour))
	if !ok {
		t.Fatal("snapshot not saved")
	}
	if snap.TasksTotal != 4 || snap.TasksDone != 2 || snap.TasksInProgress != 1 || snap.TasksBlocked != 1 {
		t.Fatalf("snapshot counts wrong: %+v", snap)
	}
}

func TestMilestoneCheckDeliversWarnings(t *testing.T) {
	t.Parallel()

	s := memory.New()
	notifier := &fakeNotifier{}
	checker := &fakeChecker{warnings: []string{"Launch drifting by 3 days"}}
	h := handler.NewProgressHandler(
		s, s, s, checker, notifier,
		breaker.NewRegistry(breaker.WithRegistryLogger(quietLogger())),
		quietLogger(),
	)

	if err := h.HandleMilestoneCheck(context.Background(), job.OrgPayload{OrgID: "org_1"}); err != nil {
		t.Fatalf("HandleMilestoneCheck: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("sent %d warnings, want 1", len(notifier.sent))
	}
}

// ──────────────────────────────────────────────────
// Registration coverage
// ──────────────────────────────────────────────────

func TestRegisterAllCoversEveryKind(t *testing.T) {
	t.Parallel()

	s := memory.New()
	breakers := breaker.NewRegistry(breaker.WithRegistryLogger(quietLogger()))
	logger := quietLogger()

	engine := bottleneck.NewEngine(s, s, bottleneck.WithLogger(logger))
	set := &handler.Set{
		Sync:     handler.NewSyncHandler(&fakeSyncClient{}, s, breakers, logger),
		Analysis: handler.NewAnalysisHandler(engine, noopPredictor{}),
		Agents:   handler.NewAgentHandler(noopRunner{}),
		Heartbeat: handler.NewHeartbeatHandler(
			&fakeGenerator{}, &fakeNotifier{}, handler.HourWindow{}, s, breakers, logger),
		Progress: handler.NewProgressHandler(
			s, s, s, &fakeChecker{}, &fakeNotifier{}, breakers, logger),
	}

	reg := job.NewRegistry()
	handler.RegisterAll(reg, set)

	if err := reg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
}

type noopPredictor struct{}

func (noopPredictor) RunPredictions(context.Context, string) error { return nil }

type noopRunner struct{}

func (noopRunner) RunPending(context.Context, string) error       { return nil }
func (noopRunner) ExecuteApproved(context.Context, string, string) error { return nil }
