package campaign

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/metrics"
	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmehdipour/campaign-orchestrator/internal/schedule"
	"go.uber.org/zap"
)

type HealthStore interface {
	ListConnections(ctx context.Context) ([]model.Connection, error)
	AppendLog(ctx context.Context, l model.CampaignLog) (model.CampaignLog, error)
}

// HealthTracker owns the cached set of connected channel ids used for
// rotation. While started it reconciles the cache against storage on a
// fixed interval and whenever ConnectionChanged is called.
type HealthTracker struct {
	store    HealthStore
	clock    schedule.Clock
	interval time.Duration
	log      *zap.Logger
	faults   FaultReporter

	mu       sync.Mutex
	active   []int64
	running  bool
	periodic *schedule.Periodic
	restored func()

	// serializes reconciliation passes; Stop uses it as a barrier
	passMu sync.Mutex
}

func NewHealthTracker(store HealthStore, clock schedule.Clock, interval time.Duration, log *zap.Logger) *HealthTracker {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	log = log.Named("health")
	return &HealthTracker{
		store:    store,
		clock:    clock,
		interval: interval,
		log:      log,
		faults:   logFaults{log},
	}
}

func (h *HealthTracker) SetFaultReporter(r FaultReporter) { h.faults = r }

// OnRestored registers fn to run when a pass takes the set from empty to
// non-empty.
func (h *HealthTracker) OnRestored(fn func()) {
	h.mu.Lock()
	h.restored = fn
	h.mu.Unlock()
}

// Start seeds the cache and begins periodic reconciliation.
func (h *HealthTracker) Start(ids []int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.active = sortedCopy(ids)
	metrics.ActiveConnections.Set(float64(len(h.active)))
	if h.running {
		return
	}
	h.running = true
	h.periodic = schedule.Every(h.clock, h.interval, h.tick)
}

// Stop ends reconciliation, waits for an in-flight pass and clears the cache.
func (h *HealthTracker) Stop() {
	h.mu.Lock()
	h.running = false
	p := h.periodic
	h.periodic = nil
	h.mu.Unlock()

	if p != nil {
		p.Stop()
	}
	h.passMu.Lock()
	h.mu.Lock()
	h.active = nil
	h.mu.Unlock()
	h.passMu.Unlock()
	metrics.ActiveConnections.Set(0)
}

func (h *HealthTracker) Active() []int64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return slices.Clone(h.active)
}

func (h *HealthTracker) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.active)
}

func (h *HealthTracker) Running() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.running
}

// ConnectionChanged runs a pass right away. Errors go to the fault reporter.
func (h *HealthTracker) ConnectionChanged(ctx context.Context) {
	if err := h.Refresh(ctx); err != nil {
		h.faults.Fault("health", err)
	}
}

func (h *HealthTracker) tick() {
	defer recoverFault(h.faults, "health")
	h.ConnectionChanged(context.Background())
}

// Refresh reconciles the cache with the connections storage reports as
// connected. It is a no-op while the tracker is stopped.
func (h *HealthTracker) Refresh(ctx context.Context) error {
	h.passMu.Lock()
	defer h.passMu.Unlock()

	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	prev := slices.Clone(h.active)
	h.mu.Unlock()

	conns, err := h.store.ListConnections(ctx)
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}
	next := make([]int64, 0, len(conns))
	for _, c := range conns {
		if c.Status == model.ConnectionConnected {
			next = append(next, c.ID)
		}
	}
	slices.Sort(next)

	added, removed := diffIDs(prev, next)

	h.mu.Lock()
	if !h.running {
		h.mu.Unlock()
		return nil
	}
	h.active = next
	restored := h.restored
	h.mu.Unlock()
	metrics.ActiveConnections.Set(float64(len(next)))

	if len(added) > 0 {
		first := added[0]
		if _, err := h.store.AppendLog(ctx, model.CampaignLog{
			ChannelID: &first,
			Status:    model.LogInfo,
			ErrorText: strp("connections online: " + joinIDs(added)),
		}); err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		h.log.Info("connections online", zap.Int64s("ids", added))
	}
	for _, id := range removed {
		if _, err := h.store.AppendLog(ctx, model.CampaignLog{
			ChannelID: &id,
			Status:    model.LogWarning,
			ErrorText: strp(fmt.Sprintf("connection %d lost", id)),
		}); err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		h.log.Warn("connection lost", zap.Int64("id", id))
	}
	if len(prev) > 0 && len(next) == 0 {
		if _, err := h.store.AppendLog(ctx, model.CampaignLog{
			Status:    model.LogWarning,
			ErrorText: strp("no connected channels, waiting for reconnection"),
		}); err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		h.log.Warn("no connected channels")
	}

	if len(prev) == 0 && len(next) > 0 && restored != nil {
		restored()
	}
	return nil
}

func diffIDs(prev, next []int64) (added, removed []int64) {
	for _, id := range next {
		if !slices.Contains(prev, id) {
			added = append(added, id)
		}
	}
	for _, id := range prev {
		if !slices.Contains(next, id) {
			removed = append(removed, id)
		}
	}
	return added, removed
}

func sortedCopy(ids []int64) []int64 {
	out := slices.Clone(ids)
	slices.Sort(out)
	return slices.Compact(out)
}

func joinIDs(ids []int64) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprint(id)
	}
	return strings.Join(parts, ", ")
}

func strp(s string) *string { return &s }
