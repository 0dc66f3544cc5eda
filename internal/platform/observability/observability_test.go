package observability

import (
	"context"
	"errors"
	"testing"
)

func TestSetupWithoutEndpointIsNoop(t *testing.T) {
	ctx := context.Background()

	tp, shutdown, err := SetupTracing(ctx, ExportConfig{})
	if err != nil {
		t.Fatalf("setup tracing: %v", err)
	}
	if tp == nil {
		t.Fatal("expected a tracer provider")
	}
	logShutdown, err := SetupLogExport(ctx, ExportConfig{})
	if err != nil {
		t.Fatalf("setup logs: %v", err)
	}
	if err := JoinShutdown(shutdown, logShutdown)(ctx); err != nil {
		t.Errorf("expected clean shutdown, got %v", err)
	}
}

func TestJoinShutdownCollectsErrors(t *testing.T) {
	errA := errors.New("a")
	errB := errors.New("b")
	calls := 0
	fn := func(err error) func(context.Context) error {
		return func(context.Context) error {
			calls++
			return err
		}
	}

	err := JoinShutdown(fn(errA), nil, fn(nil), fn(errB))(context.Background())
	if !errors.Is(err, errA) || !errors.Is(err, errB) {
		t.Errorf("expected both errors, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestNewLogger(t *testing.T) {
	if _, err := NewLogger("verbose", false); err == nil {
		t.Error("expected unknown level to be rejected")
	}
	logger, err := NewLogger("debug", true)
	if err != nil {
		t.Fatalf("new logger: %v", err)
	}
	logger.Debug("hello")
}

func TestExportConfigHeaders(t *testing.T) {
	if h := (ExportConfig{}).headers(); h != nil {
		t.Errorf("expected no headers, got %v", h)
	}
	h := ExportConfig{Endpoint: "collector:4318", AuthHeader: "Basic abc"}.headers()
	if h["Authorization"] != "Basic abc" {
		t.Errorf("unexpected headers %v", h)
	}
}
