// Package supervisor turns unexpected faults into bounded, backed-off
// restarts of the campaign machinery and drives graceful shutdown.
package supervisor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/metrics"
	"github.com/jmehdipour/campaign-orchestrator/internal/schedule"
	"go.uber.org/zap"
)

type Config struct {
	BaseDelay         time.Duration
	MaxDelay          time.Duration
	Factor            float64
	Window            time.Duration
	MaxRestarts       int
	Settle            time.Duration
	CleanupTimeout    time.Duration
	TransientPatterns []string
}

func DefaultConfig() Config {
	return Config{
		BaseDelay:         5 * time.Second,
		MaxDelay:          30 * time.Second,
		Factor:            1.5,
		Window:            30 * time.Second,
		MaxRestarts:       50,
		Settle:            2 * time.Second,
		CleanupTimeout:    30 * time.Second,
		TransientPatterns: []string{"EBUSY", "resource busy or locked", "chrome_debug.log"},
	}
}

type Pauser interface {
	Pause(ctx context.Context) error
}

type FollowUps interface {
	CancelAll()
}

type Channels interface {
	ConnectedChannels(ctx context.Context) ([]int64, error)
	ForceDisconnect(ctx context.Context, channelID int64) error
}

type Status struct {
	RestartCount   int        `json:"restartCount"`
	TotalRestarts  int        `json:"totalRestarts"`
	CurrentDelay   string     `json:"currentDelay"`
	LastFaultAt    *time.Time `json:"lastFaultAt,omitempty"`
	RestartPending bool       `json:"restartPending"`
	Ready          bool       `json:"ready"`
	ShuttingDown   bool       `json:"shuttingDown"`
}

type Supervisor struct {
	cfg   Config
	clock schedule.Clock
	log   *zap.Logger
	exit  func(code int)

	mu        sync.Mutex
	pauser    Pauser
	followups FollowUps
	channels  Channels

	restartCount int
	lastFault    time.Time
	delay        time.Duration
	pending      schedule.Task
	ready        bool
	total        int
	shutting     bool
}

type Option func(*Supervisor)

// WithExit replaces os.Exit, which is called once the restart ceiling is hit.
func WithExit(fn func(code int)) Option { return func(s *Supervisor) { s.exit = fn } }

func New(cfg Config, clock schedule.Clock, log *zap.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		cfg:   cfg,
		clock: clock,
		log:   log.Named("supervisor"),
		exit:  os.Exit,
		ready: true,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Manage wires the components restart cleanup acts on. Any may be nil.
func (s *Supervisor) Manage(p Pauser, f FollowUps, c Channels) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pauser, s.followups, s.channels = p, f, c
}

// Fault records an unexpected failure. Transient cleanup noise is dropped;
// anything else schedules a restart after a back-off that grows with the
// number of faults inside the window.
func (s *Supervisor) Fault(source string, err error) {
	if err == nil {
		return
	}
	s.mu.Lock()
	if s.shutting {
		s.mu.Unlock()
		s.log.Debug("fault during shutdown ignored", zap.String("source", source), zap.Error(err))
		return
	}
	if s.transient(err) {
		s.mu.Unlock()
		metrics.SupervisorFaults.WithLabelValues(source, "transient").Inc()
		s.log.Warn("transient fault ignored", zap.String("source", source), zap.Error(err))
		return
	}
	metrics.SupervisorFaults.WithLabelValues(source, "fatal").Inc()

	now := s.clock.Now()
	if s.restartCount == 0 || now.Sub(s.lastFault) > s.cfg.Window {
		s.restartCount = 1
	} else {
		s.restartCount++
	}
	s.lastFault = now
	s.delay = s.backoff(s.restartCount)
	count, delay := s.restartCount, s.delay

	if count > s.cfg.MaxRestarts {
		s.mu.Unlock()
		s.log.Error("restart ceiling reached, exiting",
			zap.Int("restarts", count), zap.String("source", source), zap.Error(err))
		s.exit(1)
		return
	}
	if s.pending != nil {
		s.mu.Unlock()
		s.log.Warn("fault while restart pending", zap.String("source", source), zap.Error(err))
		return
	}
	s.ready = false
	s.pending = s.clock.AfterFunc(delay, s.restart)
	s.mu.Unlock()

	s.log.Error("fault, restart scheduled",
		zap.String("source", source), zap.Error(err),
		zap.Int("restart", count), zap.Duration("delay", delay))
}

func (s *Supervisor) transient(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, p := range s.cfg.TransientPatterns {
		if p != "" && strings.Contains(msg, strings.ToLower(p)) {
			return true
		}
	}
	return false
}

func (s *Supervisor) backoff(count int) time.Duration {
	d := float64(s.cfg.BaseDelay) * math.Pow(s.cfg.Factor, float64(count-1))
	if d > float64(s.cfg.MaxDelay) {
		return s.cfg.MaxDelay
	}
	return time.Duration(d)
}

func (s *Supervisor) restart() {
	ctx, cancel := context.WithTimeout(context.Background(), s.cfg.CleanupTimeout)
	defer cancel()

	if err := s.cleanup(ctx); err != nil {
		s.mu.Lock()
		s.pending = nil
		s.mu.Unlock()
		s.Fault("supervisor", fmt.Errorf("restart cleanup: %w", err))
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.shutting {
		s.pending = nil
		return
	}
	s.pending = s.clock.AfterFunc(s.cfg.Settle, s.markReady)
}

// markReady ends a restart. Components come back lazily on the next Start.
func (s *Supervisor) markReady() {
	s.mu.Lock()
	s.pending = nil
	s.ready = true
	s.total++
	total := s.total
	s.mu.Unlock()

	metrics.SupervisorRestarts.Inc()
	s.log.Info("restart complete", zap.Int("total", total))
}

func (s *Supervisor) cleanup(ctx context.Context) error {
	s.mu.Lock()
	p, f, c := s.pauser, s.followups, s.channels
	s.mu.Unlock()

	var errs []error
	if p != nil {
		if err := p.Pause(ctx); err != nil {
			errs = append(errs, fmt.Errorf("pause: %w", err))
		}
	}
	if f != nil {
		f.CancelAll()
	}
	if c != nil {
		ids, err := c.ConnectedChannels(ctx)
		if err != nil {
			errs = append(errs, fmt.Errorf("list channels: %w", err))
		}
		for _, id := range ids {
			if err := c.ForceDisconnect(ctx, id); err != nil {
				errs = append(errs, fmt.Errorf("disconnect %d: %w", id, err))
			}
		}
	}
	return errors.Join(errs...)
}

// Shutdown runs cleanup once. Later calls return immediately.
func (s *Supervisor) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.shutting {
		s.mu.Unlock()
		return nil
	}
	s.shutting = true
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	s.mu.Unlock()

	s.log.Info("shutting down")
	return s.cleanup(ctx)
}

func (s *Supervisor) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	st := Status{
		RestartCount:   s.restartCount,
		TotalRestarts:  s.total,
		CurrentDelay:   s.delay.String(),
		RestartPending: s.pending != nil,
		Ready:          s.ready,
		ShuttingDown:   s.shutting,
	}
	if !s.lastFault.IsZero() {
		t := s.lastFault
		st.LastFaultAt = &t
	}
	return st
}
