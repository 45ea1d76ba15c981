package service

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"hive-auth/internal/event"
	"hive-auth/internal/metrics"
	"hive-auth/internal/model"
	"hive-auth/pkg/apierror"
)

// AuditService persists session lifecycle events and counts them.
type AuditService struct {
	store   AuditStore
	metrics *metrics.Metrics
}

func NewAuditService(store AuditStore, m *metrics.Metrics) *AuditService {
	return &AuditService{store: store, metrics: m}
}

// Run consumes the bus until ctx is cancelled or the subscription closes.
func (s *AuditService) Run(ctx context.Context, bus event.Bus) {
	events, unsubscribe := bus.Subscribe()
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-events:
			if !ok {
				return
			}
			s.Record(ctx, e)
		}
	}
}

func (s *AuditService) Record(ctx context.Context, e event.Event) {
	if s.metrics != nil {
		s.metrics.AuthEvents.WithLabelValues(string(e.Type)).Inc()
	}

	entry := model.AuditEntry{
		Action:     string(e.Type),
		OccurredAt: e.Timestamp.UTC().Format(time.RFC3339Nano),
		ActorID:    e.ActorID,
		HiveID:     e.HiveID,
		SessionID:  e.SessionID,
		IP:         e.IP,
		Status:     auditStatus(e.Type),
	}
	if len(e.Payload) > 0 {
		entry.Detail = e.Payload
	}

	level := slog.LevelInfo
	if entry.Status == "failure" {
		level = slog.LevelWarn
	}
	slog.Log(ctx, level, "audit", "action", entry.Action, "actor_id", e.ActorID, "hive_id", e.HiveID, "session_id", e.SessionID)

	if err := s.store.Log(ctx, entry); err != nil {
		slog.Error("audit.persist.fail", "action", entry.Action, "error", err)
	}
}

func (s *AuditService) Query(ctx context.Context, query model.AuditQuery) ([]model.AuditEntry, model.Meta, error) {
	if from := strings.TrimSpace(query.From); from != "" {
		if _, err := time.Parse(time.RFC3339, from); err != nil {
			return nil, model.Meta{}, apierror.New("VALIDATION", "invalid 'from' datetime format", from, http.StatusBadRequest)
		}
	}
	if to := strings.TrimSpace(query.To); to != "" {
		if _, err := time.Parse(time.RFC3339, to); err != nil {
			return nil, model.Meta{}, apierror.New("VALIDATION", "invalid 'to' datetime format", to, http.StatusBadRequest)
		}
	}

	return s.store.Query(ctx, query)
}

func auditStatus(t event.Type) string {
	switch t {
	case event.TypeLoginFailed, event.TypeSessionReuseDetected, event.TypePasskeyFailed:
		return "failure"
	}
	return "success"
}
