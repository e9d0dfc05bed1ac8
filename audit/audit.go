package audit

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"log/slog"
	"os"
	"time"

	"github.com/medbridge-health/medbridge/models"
	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

type Event struct {
	Kind       string
	Severity   string
	ActorDid   string
	SubjectDid string
	Outcome    string
	Detail     map[string]any
}

// Sink is the append-only audit contract. Implementations must never expose
// an update or delete path; compliance depends on rows being permanent.
type Sink interface {
	LogEvent(ctx context.Context, ev Event)
	LogSecurityViolation(ctx context.Context, ev Event)
}

// GormSink persists audit events and mirrors them to slog. Write failures are
// logged and swallowed: the decision paths that emit audit events must not be
// blocked by the audit store, but a dropped row is itself loud in the logs.
type GormSink struct {
	db     *gorm.DB
	logger *slog.Logger
}

func NewGormSink(db *gorm.DB, logger *slog.Logger) *GormSink {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{}))
	}
	return &GormSink{db: db, logger: logger}
}

func (s *GormSink) LogEvent(ctx context.Context, ev Event) {
	if ev.Severity == "" {
		ev.Severity = SeverityInfo
	}
	s.write(ctx, ev)
}

func (s *GormSink) LogSecurityViolation(ctx context.Context, ev Event) {
	if ev.Severity == "" {
		ev.Severity = SeverityHigh
	}
	ev.Kind = "security_violation." + ev.Kind
	s.write(ctx, ev)
}

func (s *GormSink) write(ctx context.Context, ev Event) {
	detail, err := json.Marshal(ev.Detail)
	if err != nil {
		s.logger.Error("error marshaling audit detail", "kind", ev.Kind, "error", err)
		detail = nil
	}

	row := models.AuditEvent{
		ID:         ulid.MustNew(ulid.Timestamp(time.Now()), rand.Reader).String(),
		CreatedAt:  time.Now().UTC(),
		Kind:       ev.Kind,
		Severity:   ev.Severity,
		ActorDid:   ev.ActorDid,
		SubjectDid: ev.SubjectDid,
		Outcome:    ev.Outcome,
		Detail:     detail,
	}

	s.logger.Info("audit", "kind", ev.Kind, "severity", ev.Severity, "actor", ev.ActorDid, "subject", ev.SubjectDid, "outcome", ev.Outcome)

	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		s.logger.Error("error writing audit event", "kind", ev.Kind, "error", err)
	}
}
