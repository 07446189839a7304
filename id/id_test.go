package id_test

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/flowtidehq/flowtide/id"
)

func TestConstructors(t *testing.T) {
	tests := []struct {
		name   string
		newFn  func() id.ID
		prefix string
	}{
		{"JobID", id.NewJobID, "job_"},
		{"ScheduleID", id.NewScheduleID, "sched_"},
		{"WorkerID", id.NewWorkerID, "wkr_"},
		{"BottleneckID", id.NewBottleneckID, "btl_"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.newFn().String()
			if !strings.HasPrefix(got, tt.prefix) {
				t.Errorf("expected prefix %q, got %q", tt.prefix, got)
			}
		})
	}
}

func TestParseRoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		newFn   func() id.ID
		parseFn func(string) (id.ID, error)
	}{
		{"JobID", id.NewJobID, id.ParseJobID},
		{"ScheduleID", id.NewScheduleID, id.ParseScheduleID},
		{"WorkerID", id.NewWorkerID, id.ParseWorkerID},
		{"BottleneckID", id.NewBottleneckID, id.ParseBottleneckID},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			original := tt.newFn()
			parsed, err := tt.parseFn(original.String())
			if err != nil {
				t.Fatalf("parse failed: %v", err)
			}
			if parsed.String() != original.String() {
				t.Errorf("round-trip mismatch: %q != %q", parsed.String(), original.String())
			}
		})
	}
}

func TestCrossTypeRejection(t *testing.T) {
	jobID := id.NewJobID().String()
	if _, err := id.ParseBottleneckID(jobID); err == nil {
		t.Errorf("ParseBottleneckID(%q) should reject a job-prefixed ID", jobID)
	}
	if _, err := id.ParseScheduleID(jobID); err == nil {
		t.Errorf("ParseScheduleID(%q) should reject a job-prefixed ID", jobID)
	}
}

func TestParseEmptyString(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Error("Parse(\"\") should fail")
	}
}

func TestNilID(t *testing.T) {
	var i id.ID
	if !i.IsNil() {
		t.Error("zero-value ID should be nil")
	}
	if i.String() != "" {
		t.Errorf("nil ID String() = %q, want empty", i.String())
	}
	v, err := i.Value()
	if err != nil {
		t.Fatalf("Value() error: %v", err)
	}
	if v != nil {
		t.Errorf("nil ID Value() = %v, want nil", v)
	}
}

func TestJSONRoundTrip(t *testing.T) {
	original := id.NewBottleneckID()

	data, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var decoded id.ID
	if err := json.Unmarshal(data, &decoded); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if decoded.String() != original.String() {
		t.Errorf("round-trip mismatch: %q != %q", decoded.String(), original.String())
	}
}

func TestScan(t *testing.T) {
	original := id.NewJobID()

	var fromString id.ID
	if err := fromString.Scan(original.String()); err != nil {
		t.Fatalf("scan string: %v", err)
	}
	if fromString.String() != original.String() {
		t.Errorf("scan string mismatch: %q != %q", fromString.String(), original.String())
	}

	var fromNil id.ID
	if err := fromNil.Scan(nil); err != nil {
		t.Fatalf("scan nil: %v", err)
	}
	if !fromNil.IsNil() {
		t.Error("scanning nil should produce the Nil ID")
	}

	var fromInt id.ID
	if err := fromInt.Scan(42); err == nil {
		t.Error("scanning an int should fail")
	}
}
