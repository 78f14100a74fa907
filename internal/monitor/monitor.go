// Package monitor periodically scans open downtime events.
package monitor

import (
	"context"
	"time"

	"go.uber.org/zap"

	"mes-execution-backend/config"
	"mes-execution-backend/internal/audit"
	"mes-execution-backend/internal/metrics"
	"mes-execution-backend/internal/model"
)

// OpenLister lists the open downtime events of every tenant.
type OpenLister interface {
	ListOpenDowntime(ctx context.Context) ([]model.DowntimeEvent, error)
}

// Report is the result of one scan.
type Report struct {
	Open []model.DowntimeEvent
	// Long holds the open events older than the long stoppage threshold.
	Long []model.DowntimeEvent
	// Detected holds the long stoppages first seen by this scan.
	Detected []model.DowntimeEvent
}

// Service feeds the open downtime gauges and reports long stoppages once each.
type Service struct {
	cfg     config.MonitorConfig
	store   OpenLister
	emitter audit.Emitter
	log     *zap.Logger
	now     func() time.Time

	// reported holds the ids of long stoppages already published.
	reported map[string]struct{}
}

// NewService creates a new monitor.
func NewService(cfg config.MonitorConfig, store OpenLister, emitter audit.Emitter, log *zap.Logger) *Service {
	return &Service{
		cfg:      cfg,
		store:    store,
		emitter:  emitter,
		log:      log,
		now:      func() time.Time { return time.Now().UTC() },
		reported: make(map[string]struct{}),
	}
}

// Run scans immediately and then on every interval until ctx is done.
func (s *Service) Run(ctx context.Context) {
	if !s.cfg.Enabled {
		s.log.Info("Downtime monitor is disabled. Not starting.")
		return
	}
	s.log.Info("Starting downtime monitor", zap.Duration("interval", s.cfg.Interval))

	s.scan(ctx)

	timer := time.NewTimer(s.cfg.Interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Downtime monitor shutting down.")
			return
		case <-timer.C:
			s.scan(ctx)
			timer.Reset(s.cfg.Interval)
		}
	}
}

func (s *Service) scan(ctx context.Context) {
	if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
		s.log.Error("Downtime scan failed", zap.Error(err))
	}
}

// RunOnce performs a single scan.
func (s *Service) RunOnce(ctx context.Context) (*Report, error) {
	open, err := s.store.ListOpenDowntime(ctx)
	if err != nil {
		return nil, err
	}

	now := s.now()
	threshold := time.Duration(s.cfg.LongStoppageMinutes) * time.Minute
	report := &Report{Open: open}
	stillOpen := make(map[string]struct{}, len(open))
	for _, ev := range open {
		stillOpen[ev.ID] = struct{}{}
		if now.Sub(ev.StartTime) < threshold {
			continue
		}
		report.Long = append(report.Long, ev)
		if _, seen := s.reported[ev.ID]; seen {
			continue
		}
		s.reported[ev.ID] = struct{}{}
		report.Detected = append(report.Detected, ev)

		s.log.Warn("Long stoppage",
			zap.String("tenant_id", ev.TenantID),
			zap.String("equipment_id", ev.EquipmentID),
			zap.String("downtime_id", ev.ID),
			zap.Duration("open_for", now.Sub(ev.StartTime).Truncate(time.Minute)),
		)
		s.emitter.Publish(ctx, audit.DomainEvent{
			Type:        audit.EventLongStoppage,
			TenantID:    ev.TenantID,
			EquipmentID: ev.EquipmentID,
			DowntimeID:  ev.ID,
			Timestamp:   now,
		})
	}
	for id := range s.reported {
		if _, ok := stillOpen[id]; !ok {
			delete(s.reported, id)
		}
	}

	metrics.OpenDowntime.Set(float64(len(open)))
	metrics.LongStoppages.Set(float64(len(report.Long)))
	s.log.Debug("Downtime scan finished", zap.Int("open", len(open)), zap.Int("long", len(report.Long)))
	return report, nil
}
