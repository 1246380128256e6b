package campaign

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"strings"
	"sync"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/channel"
	"github.com/jmehdipour/campaign-orchestrator/internal/metrics"
	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/jmehdipour/campaign-orchestrator/internal/schedule"
	"github.com/jmehdipour/campaign-orchestrator/internal/util"
	"go.uber.org/zap"
)

type State int

const (
	Idle State = iota
	Running
	WaitingForConnections
	Paused
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case WaitingForConnections:
		return "waiting_for_connections"
	case Paused:
		return "paused"
	default:
		return "idle"
	}
}

func (s State) active() bool { return s == Running || s == WaitingForConnections }

// Sender delivers one message over one channel.
type Sender interface {
	Send(ctx context.Context, channelID int64, address, text string, mediaRef *string) error
}

type Config struct {
	SendTimeout         time.Duration
	WaitingRecheck      time.Duration
	RestartSettle       time.Duration
	UnavailableMaxDelay time.Duration
}

func DefaultConfig() Config {
	return Config{
		SendTimeout:         30 * time.Second,
		WaitingRecheck:      10 * time.Second,
		RestartSettle:       time.Second,
		UnavailableMaxDelay: 10 * time.Second,
	}
}

type RestartOptions struct {
	ResetProgress bool `json:"resetProgress"`
	ClearLogs     bool `json:"clearLogs"`
}

// Scheduler drives the campaign: one tick sends to one contact, and the next
// tick is armed only once the previous one has finished.
type Scheduler struct {
	store     repository.Store
	sender    Sender
	health    *HealthTracker
	followups *FollowUpScheduler
	clock     schedule.Clock
	cfg       Config
	log       *zap.Logger
	faults    FaultReporter
	intn      func(n int) int
	onRun     func(runID string)

	ctlMu  sync.Mutex // serializes Start, Pause and Restart
	tickMu sync.Mutex // held for the whole tick; Pause uses it as a barrier

	mu       sync.Mutex
	state    State
	epoch    uint64
	runCtx   context.Context
	cancel   context.CancelFunc
	tickTask schedule.Task
	runID    string
}

type Option func(*Scheduler)

// WithRand replaces the random source. intn must return a value in [0, n).
func WithRand(intn func(n int) int) Option { return func(s *Scheduler) { s.intn = intn } }

// WithRunHook is called with the id of every new run.
func WithRunHook(fn func(runID string)) Option { return func(s *Scheduler) { s.onRun = fn } }

func NewScheduler(
	store repository.Store,
	sender Sender,
	health *HealthTracker,
	followups *FollowUpScheduler,
	clock schedule.Clock,
	cfg Config,
	log *zap.Logger,
	opts ...Option,
) *Scheduler {
	log = log.Named("scheduler")
	s := &Scheduler{
		store:     store,
		sender:    sender,
		health:    health,
		followups: followups,
		clock:     clock,
		cfg:       cfg,
		log:       log,
		faults:    logFaults{log},
		intn:      rand.IntN,
	}
	for _, o := range opts {
		o(s)
	}
	health.OnRestored(s.resume)
	return s
}

func (s *Scheduler) SetFaultReporter(r FaultReporter) { s.faults = r }

func (s *Scheduler) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Scheduler) RunID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runID
}

// Start validates preconditions and begins ticking right away.
func (s *Scheduler) Start(ctx context.Context) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	return s.start(ctx)
}

func (s *Scheduler) start(ctx context.Context) error {
	// a finishing tick may still be tearing down
	s.tickMu.Lock()
	s.tickMu.Unlock()

	s.mu.Lock()
	st := s.state
	s.mu.Unlock()
	if st.active() {
		return ErrAlreadyRunning
	}

	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return fmt.Errorf("get settings: %w", err)
	}
	if settings == nil {
		return precondition(ErrNoSettings)
	}
	conns, err := s.store.ListConnections(ctx)
	if err != nil {
		return fmt.Errorf("list connections: %w", err)
	}
	var connected []int64
	for _, c := range conns {
		if c.Status == model.ConnectionConnected {
			connected = append(connected, c.ID)
		}
	}
	if len(connected) == 0 {
		return precondition(ErrNoConnectedChannels)
	}
	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		return fmt.Errorf("list contacts: %w", err)
	}
	if len(pendingOf(contacts)) == 0 {
		return precondition(ErrNoPendingContacts)
	}
	variants, err := s.store.ListVariants(ctx)
	if err != nil {
		return fmt.Errorf("list variants: %w", err)
	}
	if len(usableOf(variants)) == 0 {
		return precondition(ErrNoEnabledVariants)
	}

	if _, err := s.store.UpdateSettings(ctx, func(st *model.Settings) { st.IsRunning = true }); err != nil {
		return fmt.Errorf("persist running: %w", err)
	}
	s.health.Start(connected)

	runID := util.New()
	if s.onRun != nil {
		s.onRun(runID)
	}

	s.mu.Lock()
	s.epoch++
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.state = Running
	s.runID = runID
	s.arm(0)
	s.mu.Unlock()

	s.log.Info("campaign started", zap.String("run_id", runID), zap.Int("channels", len(connected)))
	return nil
}

// Pause stops ticking, reconciliation and pending follow-ups. Once it returns
// no background work of the run touches storage any more. Safe to call in
// any state.
func (s *Scheduler) Pause(ctx context.Context) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()
	return s.pause(ctx)
}

func (s *Scheduler) pause(ctx context.Context) error {
	s.mu.Lock()
	if s.state.active() {
		s.state = Paused
	}
	s.stopLocked()
	s.mu.Unlock()

	s.tickMu.Lock()
	s.tickMu.Unlock()

	if s.followups != nil {
		s.followups.CancelAll()
	}
	s.health.Stop()

	_, err := s.store.UpdateSettings(ctx, func(st *model.Settings) { st.IsRunning = false })
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("persist paused: %w", err)
	}
	s.log.Info("campaign paused")
	return nil
}

// Restart pauses, optionally resets progress and logs, waits for the settle
// period and starts again.
func (s *Scheduler) Restart(ctx context.Context, opts RestartOptions) error {
	s.ctlMu.Lock()
	defer s.ctlMu.Unlock()

	if err := s.pause(ctx); err != nil {
		return err
	}

	if opts.ResetProgress {
		contacts, err := s.store.ListContacts(ctx)
		if err != nil {
			return fmt.Errorf("list contacts: %w", err)
		}
		for _, c := range contacts {
			if c.Status == model.ContactPending {
				continue
			}
			if _, err := s.store.UpdateContact(ctx, c.ID, func(c *model.Contact) { c.ResetProgress() }); err != nil {
				return fmt.Errorf("reset contact %d: %w", c.ID, err)
			}
		}
		if _, err := s.store.UpdateSettings(ctx, func(st *model.Settings) {
			st.CurrentContactIndex = 0
			st.CurrentChannelIndex = 0
		}); err != nil && !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("reset cursors: %w", err)
		}
	}
	if opts.ClearLogs {
		if err := s.store.ClearLogs(ctx); err != nil {
			return fmt.Errorf("clear logs: %w", err)
		}
	}

	var what []string
	if opts.ResetProgress {
		what = append(what, "progress reset")
	}
	if opts.ClearLogs {
		what = append(what, "logs cleared")
	}
	msg := "campaign restarted"
	if len(what) > 0 {
		msg += " (" + strings.Join(what, ", ") + ")"
	}
	if _, err := s.store.AppendLog(ctx, model.CampaignLog{Status: model.LogInfo, ErrorText: &msg}); err != nil {
		return fmt.Errorf("append log: %w", err)
	}

	if err := s.settle(ctx); err != nil {
		return err
	}
	return s.start(ctx)
}

func (s *Scheduler) settle(ctx context.Context) error {
	if s.cfg.RestartSettle <= 0 {
		return nil
	}
	done := make(chan struct{})
	t := s.clock.AfterFunc(s.cfg.RestartSettle, func() { close(done) })
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		t.Stop()
		return ctx.Err()
	}
}

// stopLocked invalidates the current run. Caller holds s.mu.
func (s *Scheduler) stopLocked() {
	s.epoch++
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.tickTask != nil {
		s.tickTask.Stop()
		s.tickTask = nil
	}
}

// arm schedules the next tick for the current epoch. Caller holds s.mu.
func (s *Scheduler) arm(d time.Duration) {
	epoch := s.epoch
	s.tickTask = s.clock.AfterFunc(d, func() { s.tick(epoch) })
}

// resume is called by the health tracker when channels come back.
func (s *Scheduler) resume() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != WaitingForConnections {
		return
	}
	if s.tickTask != nil {
		s.tickTask.Stop()
	}
	s.log.Info("connections restored, resuming")
	s.arm(0)
}

func (s *Scheduler) tick(epoch uint64) {
	s.tickMu.Lock()
	defer s.tickMu.Unlock()
	defer recoverFault(s.faults, "scheduler")

	s.mu.Lock()
	if s.epoch != epoch || !s.state.active() {
		s.mu.Unlock()
		return
	}
	ctx := s.runCtx
	s.tickTask = nil
	s.mu.Unlock()

	next, cont, err := s.step(ctx, epoch)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		metrics.TicksTotal.WithLabelValues("fault").Inc()
		s.faults.Fault("scheduler", err)
		return
	}
	if !cont {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	// resume may already have armed an immediate tick
	if s.epoch == epoch && s.state.active() && s.tickTask == nil {
		s.arm(next)
	}
}

// step runs one tick. cont=false means the run ended inside the step.
func (s *Scheduler) step(ctx context.Context, epoch uint64) (next time.Duration, cont bool, err error) {
	settings, err := s.store.GetSettings(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("get settings: %w", err)
	}
	if settings == nil {
		return 0, false, s.halt(ctx, epoch, model.LogWarning, "campaign stopped: settings missing", "halted")
	}
	contacts, err := s.store.ListContacts(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("list contacts: %w", err)
	}
	pending := pendingOf(contacts)
	if len(pending) == 0 {
		return 0, false, s.halt(ctx, epoch, model.LogInfo, "campaign finished: no pending contacts", "finished")
	}

	active := s.health.Active()
	if len(active) == 0 {
		s.setState(epoch, WaitingForConnections)
		metrics.TicksTotal.WithLabelValues("waiting").Inc()
		return s.cfg.WaitingRecheck, true, nil
	}
	s.setState(epoch, Running)

	variants, err := s.store.ListVariants(ctx)
	if err != nil {
		return 0, false, fmt.Errorf("list variants: %w", err)
	}
	usable := usableOf(variants)
	if len(usable) == 0 {
		return 0, false, s.halt(ctx, epoch, model.LogWarning, "campaign stopped: no enabled variants", "halted")
	}

	contactIdx := mod(settings.CurrentContactIndex, len(pending))
	target := pending[contactIdx]

	var chIdx int
	if settings.RotationType == model.RotationRandom {
		chIdx = s.intn(len(active))
	} else {
		chIdx = mod(settings.CurrentChannelIndex, len(active))
	}
	channelID := active[chIdx]

	var variant model.Variant
	if settings.RandomizeVariants {
		variant = usable[s.intn(len(usable))]
	} else {
		variant = usable[rosterPosition(contacts, target.ID)%len(usable)]
	}

	sendErr := s.send(ctx, channelID, target, variant)
	if sendErr != nil && ctx.Err() != nil {
		return 0, false, nil
	}
	// a delivered message is recorded even if Pause raced with the send
	ctx = context.WithoutCancel(ctx)

	next = s.randomDelay(*settings)
	if sendErr == nil {
		if err := s.recordSent(ctx, channelID, target, variant); err != nil {
			return 0, false, err
		}
		metrics.TicksTotal.WithLabelValues("sent").Inc()
	} else {
		kind := channel.Classify(sendErr)
		if err := s.recordFailure(ctx, channelID, target, variant, sendErr); err != nil {
			return 0, false, err
		}
		metrics.TicksTotal.WithLabelValues("failed").Inc()
		s.log.Warn("send failed",
			zap.Int64("contact_id", target.ID), zap.Int64("channel_id", channelID),
			zap.String("kind", kind.String()), zap.Error(sendErr))

		switch kind {
		case channel.RecipientInvalid:
		case channel.ChannelUnavailable:
			next = min(s.cfg.UnavailableMaxDelay, time.Duration(max(settings.MinIntervalSeconds, 0))*time.Second)
		default:
			if !settings.SkipErrors {
				return 0, false, s.halt(ctx, epoch, model.LogWarning, "campaign paused after send error: "+sendErr.Error(), "halted")
			}
		}
	}

	// The contact just left the pending pool, so the same index now points
	// at the following one.
	nextContact := 0
	if remaining := len(pending) - 1; remaining > 0 {
		nextContact = contactIdx % remaining
	}
	nextChannel := (chIdx + 1) % len(active)
	if _, err := s.store.UpdateSettings(ctx, func(st *model.Settings) {
		st.CurrentContactIndex = nextContact
		st.CurrentChannelIndex = nextChannel
	}); err != nil {
		return 0, false, fmt.Errorf("advance cursors: %w", err)
	}
	return next, true, nil
}

func (s *Scheduler) send(ctx context.Context, channelID int64, c model.Contact, v model.Variant) error {
	sendCtx, cancel := context.WithTimeout(ctx, s.cfg.SendTimeout)
	defer cancel()
	return s.sender.Send(sendCtx, channelID, util.NormalizeAddress(c.Address), Render(v.Text, c), v.MediaRef)
}

func (s *Scheduler) recordSent(ctx context.Context, channelID int64, c model.Contact, v model.Variant) error {
	now := s.clock.Now()
	if _, err := s.store.UpdateContact(ctx, c.ID, func(c *model.Contact) {
		c.Status = model.ContactSent
		c.SentAt = &now
		c.ErrorText = nil
	}); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}
	if _, err := s.store.AppendLog(ctx, model.CampaignLog{
		ChannelID: &channelID,
		ContactID: &c.ID,
		VariantID: &v.ID,
		Status:    model.LogSent,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues("sent", "first").Inc()

	if v.WantsFollowUp() && s.followups != nil {
		s.followups.OnFirstMessageSent(ctx, c.ID, channelID, v.ID)
	}
	return nil
}

func (s *Scheduler) recordFailure(ctx context.Context, channelID int64, c model.Contact, v model.Variant, sendErr error) error {
	now := s.clock.Now()
	text := sendErr.Error()
	if _, err := s.store.UpdateContact(ctx, c.ID, func(c *model.Contact) {
		c.Status = model.ContactError
		c.ErrorText = &text
	}); err != nil {
		return fmt.Errorf("mark error: %w", err)
	}
	if _, err := s.store.AppendLog(ctx, model.CampaignLog{
		ChannelID: &channelID,
		ContactID: &c.ID,
		VariantID: &v.ID,
		Status:    model.LogError,
		ErrorText: &text,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues("failed", "first").Inc()
	return nil
}

// halt ends the run from inside a tick. It skips the tick barrier since the
// caller holds it. Armed follow-ups are cancelled as on Pause.
func (s *Scheduler) halt(ctx context.Context, epoch uint64, status model.LogStatus, msg, outcome string) error {
	ctx = context.WithoutCancel(ctx)
	s.mu.Lock()
	if s.epoch != epoch {
		s.mu.Unlock()
		return nil
	}
	s.state = Paused
	s.stopLocked()
	s.mu.Unlock()

	if s.followups != nil {
		s.followups.CancelAll()
	}
	s.health.Stop()
	metrics.TicksTotal.WithLabelValues(outcome).Inc()
	s.log.Info("campaign halted", zap.String("reason", msg))

	if _, err := s.store.UpdateSettings(ctx, func(st *model.Settings) { st.IsRunning = false }); err != nil && !errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("persist paused: %w", err)
	}
	if _, err := s.store.AppendLog(ctx, model.CampaignLog{Status: status, ErrorText: &msg}); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	return nil
}

func (s *Scheduler) setState(epoch uint64, st State) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch || !s.state.active() || s.state == st {
		return
	}
	if st == WaitingForConnections {
		s.log.Warn("no active connections, waiting")
	}
	s.state = st
}

func (s *Scheduler) randomDelay(st model.Settings) time.Duration {
	lo := max(st.MinIntervalSeconds, 0)
	hi := max(st.MaxIntervalSeconds, lo)
	return time.Duration(lo+s.intn(hi-lo+1)) * time.Second
}

func pendingOf(contacts []model.Contact) []model.Contact {
	var out []model.Contact
	for _, c := range contacts {
		if c.Status == model.ContactPending {
			out = append(out, c)
		}
	}
	return out
}

func usableOf(vs []model.Variant) []model.Variant {
	var out []model.Variant
	for _, v := range vs {
		if v.Usable() {
			out = append(out, v)
		}
	}
	return out
}

// rosterPosition is the contact's index in the full id-ordered list, which
// stays stable while statuses change.
func rosterPosition(contacts []model.Contact, id int64) int {
	for i, c := range contacts {
		if c.ID == id {
			return i
		}
	}
	return 0
}

func mod(i, n int) int {
	if n <= 0 {
		return 0
	}
	i %= n
	if i < 0 {
		i += n
	}
	return i
}
