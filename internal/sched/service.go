// Package sched runs recurring broadcasts from config.
package sched

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"pushherd/internal/broadcast"
	"pushherd/internal/config"
	logx "pushherd/pkg/logx"
)

// Dispatcher is the broadcast entry point the scheduler drives.
type Dispatcher interface {
	Dispatch(ctx context.Context, msg broadcast.Message) (broadcast.Result, error)
}

// dispatchTimeout bounds one scheduled batch so a stuck push service
// cannot pile up overlapping runs forever.
const dispatchTimeout = 10 * time.Minute

// Service owns a cron runner rebuilt on every config reload.
type Service struct {
	disp Dispatcher
	log  logx.Logger

	mu      sync.Mutex
	cron    *cron.Cron
	started bool
}

func New(disp Dispatcher, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Service{disp: disp, log: log}
}

// Apply replaces the schedule set. Invalid entries reject the whole set
// so a bad reload cannot half-install.
func (s *Service) Apply(entries []config.ScheduleConfig) error {
	c := cron.New()
	for _, e := range entries {
		msg, err := e.Message()
		if err != nil {
			return fmt.Errorf("schedule %q: %w", e.Name, err)
		}
		name := e.Name
		if _, err := c.AddFunc(e.Spec, func() { s.run(name, msg) }); err != nil {
			return fmt.Errorf("schedule %q: invalid spec %q: %w", e.Name, e.Spec, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	old := s.cron
	s.cron = c
	if s.started {
		c.Start()
	}
	if old != nil {
		old.Stop()
	}
	s.log.Info("schedules applied", logx.Int("count", len(entries)))
	return nil
}

func (s *Service) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started {
		return
	}
	s.started = true
	if s.cron != nil {
		s.cron.Start()
	}
}

// Stop halts triggering; a batch already running finishes on its own.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.started {
		return
	}
	s.started = false
	if s.cron != nil {
		s.cron.Stop()
	}
}

func (s *Service) run(name string, msg broadcast.Message) {
	ctx, cancel := context.WithTimeout(context.Background(), dispatchTimeout)
	defer cancel()

	res, err := s.disp.Dispatch(ctx, msg)
	if err != nil {
		s.log.Error("scheduled broadcast failed",
			logx.String("schedule", name), logx.Err(err),
			logx.Int("total", res.Total), logx.Int("sent", res.Sent), logx.Int("failed", res.Failed))
		return
	}
	s.log.Info("scheduled broadcast done",
		logx.String("schedule", name),
		logx.Int("total", res.Total), logx.Int("sent", res.Sent), logx.Int("failed", res.Failed))
}
