package audit

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Entry represents an audit log entry for a billing mutation.
type Entry struct {
	ID            string
	LandlordID    string
	Actor         string
	Role          string
	Action        string
	ResourceType  string
	ResourceID    string
	HostelID      string
	Metadata      json.RawMessage
	PayloadDigest string
	IP            string
	UserAgent     string
	CreatedAt     time.Time
}

// Logger writes audit entries.
type Logger interface {
	Log(ctx context.Context, entry Entry) error
}

// NewID generates a random audit id.
func NewID() string {
	return "audit-" + uuid.NewString()
}

// DigestJSON computes a SHA256 hex digest for metadata payloads.
func DigestJSON(data []byte) string {
	if len(data) == 0 {
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func (e *Entry) fillDefaults() {
	if e.ID == "" {
		e.ID = NewID()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	if e.PayloadDigest == "" {
		e.PayloadDigest = DigestJSON(e.Metadata)
	}
}

// ZapLogger writes audit entries to a structured log. Used when no database is configured.
type ZapLogger struct {
	logger *zap.SugaredLogger
}

// NewZapLogger constructs a log-backed audit logger.
func NewZapLogger(logger *zap.SugaredLogger) *ZapLogger {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &ZapLogger{logger: logger.Named("audit")}
}

func (l *ZapLogger) Log(_ context.Context, entry Entry) error {
	entry.fillDefaults()
	l.logger.Infow(entry.Action,
		"audit_id", entry.ID,
		"landlord_id", entry.LandlordID,
		"actor", entry.Actor,
		"role", entry.Role,
		"resource_type", entry.ResourceType,
		"resource_id", entry.ResourceID,
		"hostel_id", entry.HostelID,
		"payload_digest", entry.PayloadDigest,
		"ip", entry.IP,
	)
	return nil
}

// MemoryLogger keeps entries in memory.
type MemoryLogger struct {
	mu      sync.Mutex
	entries []Entry
}

func (l *MemoryLogger) Log(_ context.Context, entry Entry) error {
	entry.fillDefaults()
	l.mu.Lock()
	l.entries = append(l.entries, entry)
	l.mu.Unlock()
	return nil
}

// Entries returns a copy of the logged entries.
func (l *MemoryLogger) Entries() []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]Entry(nil), l.entries...)
}
