package job_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/flowtidehq/flowtide"
	"github.com/flowtidehq/flowtide/job"
)

type briefingPayload struct {
	OrganizationID string `json:"organization_id"`
}

func TestRegisterDefinition_DecodesTypedPayload(t *testing.T) {
	reg := job.NewRegistry()

	var got string
	job.RegisterDefinition(reg, job.NewDefinition(job.KindDailyBriefing,
		func(_ context.Context, p briefingPayload) error {
			got = p.OrganizationID
			return nil
		}))

	h, ok := reg.Get(job.KindDailyBriefing)
	if !ok {
		t.Fatal("handler not registered")
	}
	if err := h(context.Background(), []byte(`{"organization_id":"org_1"}`)); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if got != "org_1" {
		t.Errorf("payload org = %q, want %q", got, "org_1")
	}
}

func TestRegisterDefinition_MalformedPayloadIsPermanent(t *testing.T) {
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition(job.KindDailyBriefing,
		func(_ context.Context, _ briefingPayload) error { return nil }))

	h, _ := reg.Get(job.KindDailyBriefing)
	err := h(context.Background(), []byte(`{not json`))
	if err == nil {
		t.Fatal("expected decode error")
	}
	if !errors.Is(err, flowtide.ErrPermanent) {
		t.Errorf("decode error should be permanent, got %v", err)
	}
}

func TestRegistry_KeepsDefinitionOptions(t *testing.T) {
	reg := job.NewRegistry()
	job.RegisterDefinition(reg, job.NewDefinition(job.KindSync,
		func(_ context.Context, _ briefingPayload) error { return nil },
		job.WithQueue("sync"), job.WithTimeout(10*time.Minute)))

	opts, ok := reg.Options(job.KindSync)
	if !ok {
		t.Fatal("options not recorded at registration")
	}
	if opts.Queue != "sync" {
		t.Errorf("queue = %q, want %q", opts.Queue, "sync")
	}
	if opts.Timeout != 10*time.Minute {
		t.Errorf("timeout = %s, want 10m", opts.Timeout)
	}
	if opts.MaxAttempts != job.DefaultOptions().MaxAttempts {
		t.Errorf("max attempts = %d, want default", opts.MaxAttempts)
	}

	if _, ok := reg.Options(job.KindDailyBriefing); ok {
		t.Error("unregistered kind should have no options")
	}
}

func TestRegistry_GetUnknownKind(t *testing.T) {
	reg := job.NewRegistry()
	if _, ok := reg.Get(job.KindSync); ok {
		t.Error("empty registry should have no handlers")
	}
}

func TestRegistry_ValidateReportsMissingKinds(t *testing.T) {
	reg := job.NewRegistry()
	if err := reg.Validate(); err == nil {
		t.Fatal("empty registry should fail validation")
	}

	for _, k := range job.Kinds() {
		job.RegisterDefinition(reg, job.NewDefinition(k,
			func(_ context.Context, _ struct{}) error { return nil }))
	}
	if err := reg.Validate(); err != nil {
		t.Fatalf("fully populated registry failed validation: %v", err)
	}
}

func TestKinds_AllValid(t *testing.T) {
	for _, k := range job.Kinds() {
		if !k.Valid() {
			t.Errorf("kind %q reported invalid", k)
		}
	}
	if job.Kind("made_up").Valid() {
		t.Error("unknown kind reported valid")
	}
}
