package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"
)

func TestJSONOutputUsesRenamedKeys(t *testing.T) {
	var buf bytes.Buffer
	l := New(&Config{Level: "info", Format: "json", Output: &buf, ServiceName: "test-svc"})

	l.Info("hello")

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, buf.String())
	}
	for _, key := range []string{"timestamp", "level", "message", "service"} {
		if _, ok := got[key]; !ok {
			t.Errorf("missing key %q in %v", key, got)
		}
	}
	if got["service"] != "test-svc" {
		t.Errorf("service = %v, want test-svc", got["service"])
	}
}

func TestContextFieldsPropagate(t *testing.T) {
	var buf bytes.Buffer
	base := New(&Config{Level: "debug", Format: "json", Output: &buf})

	ctx := base.WithContext(context.Background())
	ctx = SetJobID(ctx, "job-1")
	ctx = SetContentID(ctx, "talk-9")

	if got := FromContext(ctx).Data[FieldJobID]; got != "job-1" {
		t.Errorf("job_id = %v, want job-1", got)
	}

	With(Fields{FieldCount: 3}).Info(ctx, "done")

	var got map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &got); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if got[FieldJobID] != "job-1" || got[FieldContentID] != "talk-9" {
		t.Errorf("context fields missing: %v", got)
	}
	if got[FieldCount] != float64(3) {
		t.Errorf("count = %v, want 3", got[FieldCount])
	}
}

func TestFromContextFallsBackToDefault(t *testing.T) {
	if FromContext(context.Background()) != GetDefault() {
		t.Error("expected default logger for bare context")
	}
}

func TestFromContextOrPrefersAttachedLogger(t *testing.T) {
	var attachedBuf, injectedBuf bytes.Buffer
	attached := New(&Config{Level: "info", Format: "json", Output: &attachedBuf})
	injected := New(&Config{Level: "info", Format: "json", Output: &injectedBuf})

	if got := FromContextOr(context.Background(), injected); got != injected {
		t.Error("FromContextOr without an attached logger should return the fallback")
	}

	ctx := attached.WithContext(context.Background())
	if got := FromContextOr(ctx, injected); got != attached {
		t.Error("FromContextOr should return the attached logger")
	}

	ctx = EnsureContext(context.Background(), injected)
	ctx = SetJobID(ctx, "job-7")
	FromContext(ctx).Info("from injected")
	if !strings.Contains(injectedBuf.String(), "job-7") {
		t.Errorf("injected logger output = %q, want job_id field", injectedBuf.String())
	}
	if EnsureContext(ctx, attached) != ctx {
		t.Error("EnsureContext should keep an already attached logger")
	}
}
