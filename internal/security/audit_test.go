package security

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"tally-node/internal/domain"
	"tally-node/internal/infra/config"
)

func readEvents(t *testing.T, path string) []domain.AuditEvent {
	t.Helper()
	f, err := os.Open(path)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	defer f.Close()

	var out []domain.AuditEvent
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e domain.AuditEvent
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			t.Fatalf("Unmarshal: %v", err)
		}
		out = append(out, e)
	}
	return out
}

func TestFileAuditLogger_WriteAndRead(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")

	logger, err := NewFileAuditLogger(path)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}

	event := domain.AuditEvent{
		Type:     domain.AuditFormUpdate,
		Resource: "wMx1",
		Action:   "add_field",
		Outcome:  "success",
		Detail:   map[string]string{"added": "2", "run_id": "01HZX"},
	}
	if err := logger.Log(context.Background(), event); err != nil {
		t.Fatalf("Log: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	events := readEvents(t, path)
	if len(events) != 1 {
		t.Fatalf("got %d events, want 1", len(events))
	}
	got := events[0]
	if got.Type != domain.AuditFormUpdate {
		t.Errorf("Type = %q, want %q", got.Type, domain.AuditFormUpdate)
	}
	if got.Resource != "wMx1" || got.Action != "add_field" {
		t.Errorf("Resource/Action = %q/%q", got.Resource, got.Action)
	}
	if got.Detail["added"] != "2" {
		t.Errorf("Detail[added] = %q", got.Detail["added"])
	}
}

func TestFileAuditLogger_CreatesParentDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "dir", "audit.jsonl")
	logger, err := NewFileAuditLogger(path)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	logger.Close()

	info, err := os.Stat(filepath.Dir(path))
	if err != nil {
		t.Fatalf("Stat dir: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0700 {
		t.Errorf("dir perm = %o, want 0700", perm)
	}
}

func TestFileAuditLogger_AutoTimestamp(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileAuditLogger(path)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}

	before := time.Now().Add(-time.Second)
	logger.Log(context.Background(), domain.AuditEvent{Type: domain.AuditFormCreate})
	after := time.Now().Add(time.Second)
	logger.Close()

	events := readEvents(t, path)
	if len(events) != 1 {
		t.Fatalf("got %d events", len(events))
	}
	if ts := events[0].Timestamp; ts.Before(before) || ts.After(after) {
		t.Errorf("timestamp %v not in expected range [%v, %v]", ts, before, after)
	}
}

func TestFileAuditLogger_ConcurrentWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileAuditLogger(path)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			logger.Log(context.Background(), domain.AuditEvent{
				Type:   domain.AuditFormUpdate,
				Detail: map[string]string{"i": fmt.Sprintf("%d", i)},
			})
		}(i)
	}
	wg.Wait()
	logger.Close()

	if n := len(readEvents(t, path)); n != 20 {
		t.Errorf("expected 20 lines, got %d", n)
	}
}

func TestNewFileAuditLoggerInvalidPath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := NewFileAuditLogger(filepath.Join(blocker, "audit.jsonl")); err == nil {
		t.Error("expected error when parent is a file")
	}
}

func TestFileAuditLogger_WriteAfterClose(t *testing.T) {
	logger, err := NewFileAuditLogger(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	logger.Close()

	err = logger.Log(context.Background(), domain.AuditEvent{Type: domain.AuditFormUpdate})
	if err == nil {
		t.Fatal("expected error writing to closed file")
	}
	if !errors.Is(err, domain.ErrAuditWrite) {
		t.Errorf("expected ErrAuditWrite, got %v", err)
	}
}

func TestFileAuditLogger_FilePermissions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileAuditLogger(path)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	logger.Close()

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("file permissions = %o, want 0600", perm)
	}
}

func TestFileAuditLogger_SpanEvent(t *testing.T) {
	logger, err := NewFileAuditLogger(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	defer logger.Close()

	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	defer tp.Shutdown(context.Background())
	otel.SetTracerProvider(tp)

	ctx, span := otel.Tracer("test").Start(context.Background(), "formops.delete_fields")
	err = logger.Log(ctx, domain.AuditEvent{
		Type:     domain.AuditFormUpdate,
		Resource: "wMx1",
		Outcome:  "success",
		Detail:   map[string]string{"removed": "3"},
	})
	span.End()
	if err != nil {
		t.Fatalf("Log with active span: %v", err)
	}

	ended := rec.Ended()
	if len(ended) != 1 {
		t.Fatalf("recorded %d spans, want 1", len(ended))
	}
	events := ended[0].Events()
	if len(events) != 1 || events[0].Name != "audit.form_update" {
		t.Fatalf("events = %+v", events)
	}
	found := false
	for _, a := range events[0].Attributes {
		if string(a.Key) == "audit.removed" && a.Value.AsString() == "3" {
			found = true
		}
	}
	if !found {
		t.Errorf("audit.removed attribute missing: %+v", events[0].Attributes)
	}
}

func TestFileAuditLogger_EnforceRetention_MaxAge(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileAuditLogger(path)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}

	logger.Log(context.Background(), domain.AuditEvent{
		Timestamp: time.Now().Add(-2 * time.Hour),
		Type:      domain.AuditFormUpdate,
		Detail:    map[string]string{"age": "old"},
	})
	logger.Log(context.Background(), domain.AuditEvent{
		Timestamp: time.Now(),
		Type:      domain.AuditFormUpdate,
		Detail:    map[string]string{"age": "new"},
	})

	logger.SetRetention(RetentionPolicy{MaxAge: time.Hour})
	removed, err := logger.EnforceRetention(context.Background())
	if err != nil {
		t.Fatalf("EnforceRetention: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}
	logger.Close()

	events := readEvents(t, path)
	if len(events) != 1 || events[0].Detail["age"] != "new" {
		t.Errorf("remaining events = %+v", events)
	}
}

func TestFileAuditLogger_EnforceRetention_MaxSize(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileAuditLogger(path)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}

	for i := 0; i < 100; i++ {
		logger.Log(context.Background(), domain.AuditEvent{
			Type:   domain.AuditFormUpdate,
			Detail: map[string]string{"index": fmt.Sprintf("%d", i), "padding": "some data to make the line longer for testing"},
		})
	}

	logger.SetRetention(RetentionPolicy{MaxSize: 500})
	removed, err := logger.EnforceRetention(context.Background())
	if err != nil {
		t.Fatalf("EnforceRetention: %v", err)
	}
	if removed == 0 {
		t.Error("expected some entries to be removed")
	}
	logger.Close()

	info, _ := os.Stat(path)
	if info.Size() > 500 {
		t.Errorf("file size = %d, want <= 500", info.Size())
	}
}

func TestFileAuditLogger_EnforceRetention_NoPolicy(t *testing.T) {
	logger, err := NewFileAuditLogger(filepath.Join(t.TempDir(), "audit.jsonl"))
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}
	defer logger.Close()

	logger.Log(context.Background(), domain.AuditEvent{Type: domain.AuditFormUpdate})
	removed, err := logger.EnforceRetention(context.Background())
	if err != nil {
		t.Fatalf("EnforceRetention: %v", err)
	}
	if removed != 0 {
		t.Errorf("removed = %d, want 0", removed)
	}
}

func TestFileAuditLogger_EnforceRetention_ContinueWriting(t *testing.T) {
	path := filepath.Join(t.TempDir(), "audit.jsonl")
	logger, err := NewFileAuditLogger(path)
	if err != nil {
		t.Fatalf("NewFileAuditLogger: %v", err)
	}

	logger.Log(context.Background(), domain.AuditEvent{
		Timestamp: time.Now().Add(-2 * time.Hour),
		Type:      domain.AuditFormUpdate,
	})
	logger.SetRetention(RetentionPolicy{MaxAge: time.Hour})
	logger.EnforceRetention(context.Background())

	if err := logger.Log(context.Background(), domain.AuditEvent{
		Type:   domain.AuditFormCreate,
		Detail: map[string]string{"test": "after-retention"},
	}); err != nil {
		t.Fatalf("Log after retention: %v", err)
	}
	logger.Close()

	events := readEvents(t, path)
	if len(events) != 1 || events[0].Detail["test"] != "after-retention" {
		t.Errorf("events = %+v", events)
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		a, err := NewFromConfig(context.Background(), config.AuditConfig{Enabled: false})
		if err != nil {
			t.Fatalf("NewFromConfig: %v", err)
		}
		if _, ok := a.(domain.NopAuditLogger); !ok {
			t.Errorf("got %T, want NopAuditLogger", a)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "audit.jsonl")
		a, err := NewFromConfig(context.Background(), config.AuditConfig{
			Enabled:   true,
			Path:      path,
			Retention: config.RetentionConfig{MaxAge: "24h", MaxSize: "1MB"},
		})
		if err != nil {
			t.Fatalf("NewFromConfig: %v", err)
		}
		defer a.Close()
		fa, ok := a.(*FileAuditLogger)
		if !ok {
			t.Fatalf("got %T, want *FileAuditLogger", a)
		}
		if fa.retention == nil || fa.retention.MaxAge != 24*time.Hour || fa.retention.MaxSize != 1<<20 {
			t.Errorf("retention = %+v", fa.retention)
		}
	})

	t.Run("bad retention", func(t *testing.T) {
		_, err := NewFromConfig(context.Background(), config.AuditConfig{
			Enabled:   true,
			Path:      filepath.Join(t.TempDir(), "audit.jsonl"),
			Retention: config.RetentionConfig{MaxAge: "soon"},
		})
		if err == nil {
			t.Error("expected error for bad max_age")
		}
	})
}
