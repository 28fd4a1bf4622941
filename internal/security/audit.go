// Package security holds the edit audit log.
package security

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"tally-node/internal/domain"
	"tally-node/internal/infra/config"
	"tally-node/internal/infra/tracer"
)

// RetentionPolicy controls how long audit logs are kept.
type RetentionPolicy struct {
	MaxAge  time.Duration // max age of entries; 0 = no limit
	MaxSize int64         // max file size in bytes; 0 = no limit
}

// FileAuditLogger implements domain.AuditLogger by writing JSONL to a file.
type FileAuditLogger struct {
	mu        sync.Mutex
	file      *os.File
	path      string
	retention *RetentionPolicy
}

// NewFileAuditLogger creates an audit logger that appends to the given path.
// Missing parent directories are created 0700; the file is created 0600.
func NewFileAuditLogger(path string) (*FileAuditLogger, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("create audit dir: %w", err)
	}
	f, err := openAppend(path)
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	return &FileAuditLogger{file: f, path: path}, nil
}

// NewFromConfig opens the audit log described by cfg and applies its
// retention policy once. A disabled audit log yields a no-op logger.
func NewFromConfig(ctx context.Context, cfg config.AuditConfig) (domain.AuditLogger, error) {
	if !cfg.Enabled {
		return domain.NopAuditLogger{}, nil
	}

	var policy RetentionPolicy
	if cfg.Retention.MaxAge != "" {
		d, err := time.ParseDuration(cfg.Retention.MaxAge)
		if err != nil {
			return nil, fmt.Errorf("audit retention max_age: %w", err)
		}
		policy.MaxAge = d
	}
	if cfg.Retention.MaxSize != "" {
		n, err := config.ParseSize(cfg.Retention.MaxSize)
		if err != nil {
			return nil, fmt.Errorf("audit retention max_size: %w", err)
		}
		policy.MaxSize = n
	}

	a, err := NewFileAuditLogger(cfg.Path)
	if err != nil {
		return nil, err
	}
	if policy.MaxAge > 0 || policy.MaxSize > 0 {
		a.SetRetention(policy)
		if _, err := a.EnforceRetention(ctx); err != nil {
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

// SetRetention configures the retention policy for log cleanup.
func (a *FileAuditLogger) SetRetention(policy RetentionPolicy) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.retention = &policy
}

// Log writes an audit event as a single JSON line and mirrors it onto the
// active span as an event.
func (a *FileAuditLogger) Log(ctx context.Context, event domain.AuditEvent) error {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, err := a.file.Write(append(data, '\n')); err != nil {
		return domain.NewDomainError("FileAuditLogger.Log", domain.ErrAuditWrite, err.Error())
	}

	keys := make([]string, 0, len(event.Detail))
	for k := range event.Detail {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	attrs := make([]attribute.KeyValue, 0, len(keys)+2)
	attrs = append(attrs,
		tracer.StringAttr("audit.resource", event.Resource),
		tracer.StringAttr("audit.outcome", event.Outcome),
	)
	for _, k := range keys {
		attrs = append(attrs, tracer.StringAttr("audit."+k, event.Detail[k]))
	}
	tracer.AddEvent(ctx, "audit."+string(event.Type), attrs...)

	return nil
}

// Close closes the audit log file.
func (a *FileAuditLogger) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.file.Close()
}

// EnforceRetention removes old entries based on the configured retention policy.
// It rewrites the log file, keeping only entries that satisfy the policy.
// This is safe to call while the logger is active.
func (a *FileAuditLogger) EnforceRetention(ctx context.Context) (removed int, err error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	policy := a.retention
	if policy == nil {
		return 0, nil
	}

	if policy.MaxSize > 0 && policy.MaxAge == 0 {
		info, err := os.Stat(a.path)
		if err != nil {
			return 0, fmt.Errorf("stat audit log: %w", err)
		}
		if info.Size() <= policy.MaxSize {
			return 0, nil
		}
	}

	cutoff := time.Time{}
	if policy.MaxAge > 0 {
		cutoff = time.Now().Add(-policy.MaxAge)
	}

	if err := a.file.Close(); err != nil {
		return 0, fmt.Errorf("close for retention: %w", err)
	}

	kept, removed, err := readKept(a.path, cutoff)
	if err != nil {
		a.file, _ = openAppend(a.path)
		return 0, err
	}

	// Still over the size cap: drop the oldest entries.
	if policy.MaxSize > 0 {
		var size int64
		for _, line := range kept {
			size += int64(len(line)) + 1
		}
		for len(kept) > 0 && size > policy.MaxSize {
			size -= int64(len(kept[0])) + 1
			kept = kept[1:]
			removed++
		}
	}

	if err := rewrite(a.path, kept); err != nil {
		a.file, _ = openAppend(a.path)
		return 0, err
	}

	a.file, err = openAppend(a.path)
	if err != nil {
		return removed, fmt.Errorf("reopen after retention: %w", err)
	}
	return removed, nil
}

// readKept returns the non-empty lines of path not older than cutoff.
// Lines without a parsable timestamp are kept.
func readKept(path string, cutoff time.Time) (kept [][]byte, removed int, err error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, fmt.Errorf("open for reading: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 1024*1024), 1024*1024) // 1MB max line
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		if !cutoff.IsZero() {
			var entry struct {
				Timestamp time.Time `json:"timestamp"`
			}
			if json.Unmarshal(line, &entry) == nil && !entry.Timestamp.IsZero() && entry.Timestamp.Before(cutoff) {
				removed++
				continue
			}
		}
		kept = append(kept, append([]byte(nil), line...))
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("scan audit log: %w", err)
	}
	return kept, removed, nil
}

// rewrite replaces path with lines via a temp file and rename.
func rewrite(path string, lines [][]byte) error {
	tmpPath := path + ".tmp"
	tmp, err := os.OpenFile(tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0600)
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	w := bufio.NewWriter(tmp)
	for _, line := range lines {
		w.Write(line)
		w.WriteByte('\n')
	}
	if err := w.Flush(); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	tmp.Close()

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func openAppend(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
}

var _ domain.AuditLogger = (*FileAuditLogger)(nil)
