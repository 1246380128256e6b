package campaign

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/metrics"
	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/jmehdipour/campaign-orchestrator/internal/schedule"
	"github.com/jmehdipour/campaign-orchestrator/internal/util"
	"go.uber.org/zap"
)

type FollowUpConfig struct {
	DefaultDelay time.Duration
	SendTimeout  time.Duration
}

type eligibility struct {
	channelID int64
	variantID int64
}

type armed struct {
	task  schedule.Task
	epoch uint64
}

// FollowUpStats counts contacts waiting on a reply and timers armed to send
// the second message.
type FollowUpStats struct {
	Eligible int `json:"eligible"`
	Armed    int `json:"armed"`
}

// FollowUpScheduler sends the secondary message of a variant some time after
// the contact replies. Each contact has at most one armed timer, and the
// second message goes out at most once.
type FollowUpScheduler struct {
	store  repository.Store
	sender Sender
	clock  schedule.Clock
	cfg    FollowUpConfig
	log    *zap.Logger
	faults FaultReporter

	mu       sync.Mutex
	timers   map[int64]*armed
	eligible map[int64]eligibility
	epoch    uint64
	ctx      context.Context
	cancel   context.CancelFunc

	locks keyedMutex

	// fires hold it shared; CancelAll takes it exclusively to wait them out
	fireMu sync.RWMutex
}

func NewFollowUpScheduler(store repository.Store, sender Sender, clock schedule.Clock, cfg FollowUpConfig, log *zap.Logger) *FollowUpScheduler {
	if cfg.DefaultDelay <= 0 {
		cfg.DefaultDelay = model.DefaultSecondMessageDelaySeconds * time.Second
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 30 * time.Second
	}
	log = log.Named("followup")
	ctx, cancel := context.WithCancel(context.Background())
	return &FollowUpScheduler{
		store:    store,
		sender:   sender,
		clock:    clock,
		cfg:      cfg,
		log:      log,
		faults:   logFaults{log},
		timers:   map[int64]*armed{},
		eligible: map[int64]eligibility{},
		ctx:      ctx,
		cancel:   cancel,
	}
}

func (f *FollowUpScheduler) SetFaultReporter(r FaultReporter) { f.faults = r }

// OnFirstMessageSent records that the contact may get a follow-up once it
// replies. Nothing is armed here.
func (f *FollowUpScheduler) OnFirstMessageSent(_ context.Context, contactID, channelID, variantID int64) {
	unlock := f.locks.lock(contactID)
	defer unlock()

	f.mu.Lock()
	defer f.mu.Unlock()
	f.eligible[contactID] = eligibility{channelID: channelID, variantID: variantID}
	f.dropTimerLocked(contactID)
}

// OnContactReplied marks the contact responded and arms the follow-up if
// its variant asks for one. Repeated replies re-arm at most one timer and
// never cause a second send.
func (f *FollowUpScheduler) OnContactReplied(ctx context.Context, contactID int64) error {
	unlock := f.locks.lock(contactID)
	defer unlock()

	c, err := f.store.GetContact(ctx, contactID)
	if err != nil {
		return fmt.Errorf("get contact: %w", err)
	}
	if c == nil || c.SecondMessageSentAt != nil {
		return nil
	}
	if c.Status != model.ContactSent && c.Status != model.ContactResponded {
		return nil
	}

	now := f.clock.Now()
	if _, err := f.store.UpdateContact(ctx, contactID, func(c *model.Contact) {
		c.Status = model.ContactResponded
		if c.RespondedAt == nil {
			c.RespondedAt = &now
		}
	}); err != nil {
		return fmt.Errorf("mark responded: %w", err)
	}

	f.mu.Lock()
	f.dropTimerLocked(contactID)
	f.mu.Unlock()

	first, err := f.store.LatestLog(ctx, contactID, model.LogSent)
	if err != nil {
		return fmt.Errorf("latest sent log: %w", err)
	}
	if first == nil || first.VariantID == nil || first.ChannelID == nil {
		f.log.Debug("no first message on record", zap.Int64("contact_id", contactID))
		return nil
	}
	v, err := f.store.GetVariant(ctx, *first.VariantID)
	if err != nil {
		return fmt.Errorf("get variant: %w", err)
	}
	if v == nil || !v.WantsFollowUp() {
		return nil
	}

	delay := f.cfg.DefaultDelay
	if v.SecondMessageDelaySeconds > 0 {
		delay = v.FollowUpDelay()
	}
	channelID, variantID := *first.ChannelID, v.ID

	f.mu.Lock()
	defer f.mu.Unlock()
	entry := &armed{epoch: f.epoch}
	entry.task = f.clock.AfterFunc(delay, func() { f.fire(entry, contactID, channelID, variantID) })
	f.timers[contactID] = entry
	f.log.Info("follow-up armed", zap.Int64("contact_id", contactID), zap.Duration("delay", delay))
	return nil
}

// CancelAll stops every armed timer and waits for in-flight sends to give
// up. Contact state is left as is.
func (f *FollowUpScheduler) CancelAll() {
	f.mu.Lock()
	f.epoch++
	f.cancel()
	f.ctx, f.cancel = context.WithCancel(context.Background())
	for id, t := range f.timers {
		t.task.Stop()
		delete(f.timers, id)
	}
	f.mu.Unlock()

	f.fireMu.Lock()
	f.fireMu.Unlock()
}

func (f *FollowUpScheduler) Stats() FollowUpStats {
	f.mu.Lock()
	defer f.mu.Unlock()
	return FollowUpStats{Eligible: len(f.eligible), Armed: len(f.timers)}
}

func (f *FollowUpScheduler) dropTimerLocked(contactID int64) {
	if t, ok := f.timers[contactID]; ok {
		t.task.Stop()
		delete(f.timers, contactID)
	}
}

func (f *FollowUpScheduler) fire(entry *armed, contactID, channelID, variantID int64) {
	f.fireMu.RLock()
	defer f.fireMu.RUnlock()
	defer recoverFault(f.faults, "followup")

	f.mu.Lock()
	if entry.epoch != f.epoch {
		f.mu.Unlock()
		return
	}
	if f.timers[contactID] == entry {
		delete(f.timers, contactID)
	}
	ctx := f.ctx
	f.mu.Unlock()

	unlock := f.locks.lock(contactID)
	defer unlock()

	if err := f.sendSecond(ctx, contactID, channelID, variantID); err != nil && ctx.Err() == nil {
		f.faults.Fault("followup", err)
	}
}

// sendSecond returns only storage errors; send failures are logged.
func (f *FollowUpScheduler) sendSecond(ctx context.Context, contactID, channelID, variantID int64) error {
	c, err := f.store.GetContact(ctx, contactID)
	if err != nil {
		return fmt.Errorf("get contact: %w", err)
	}
	if c == nil || c.SecondMessageSentAt != nil {
		return nil
	}
	if c.Status != model.ContactSent && c.Status != model.ContactResponded {
		return nil
	}
	v, err := f.store.GetVariant(ctx, variantID)
	if err != nil {
		return fmt.Errorf("get variant: %w", err)
	}
	if v == nil || !v.WantsFollowUp() {
		return nil
	}

	sendCtx, cancel := context.WithTimeout(ctx, f.cfg.SendTimeout)
	sendErr := f.sender.Send(sendCtx, channelID, util.NormalizeAddress(c.Address), Render(*v.SecondText, *c), v.SecondMediaRef)
	cancel()
	if sendErr != nil && ctx.Err() != nil {
		return nil
	}
	ctx = context.WithoutCancel(ctx)

	now := f.clock.Now()
	if sendErr != nil {
		metrics.MessagesTotal.WithLabelValues("failed", "second").Inc()
		f.log.Warn("second message failed", zap.Int64("contact_id", contactID), zap.Error(sendErr))
		text := "second message error: " + sendErr.Error()
		if _, err := f.store.AppendLog(ctx, model.CampaignLog{
			ChannelID: &channelID,
			ContactID: &contactID,
			VariantID: &variantID,
			Status:    model.LogError,
			ErrorText: &text,
			CreatedAt: now,
		}); err != nil {
			return fmt.Errorf("append log: %w", err)
		}
		return nil
	}

	if _, err := f.store.UpdateContact(ctx, contactID, func(c *model.Contact) {
		if c.SecondMessageSentAt != nil {
			return
		}
		c.Status = model.ContactSecondSent
		c.SecondMessageSentAt = &now
	}); err != nil {
		return fmt.Errorf("mark second sent: %w", err)
	}
	if _, err := f.store.AppendLog(ctx, model.CampaignLog{
		ChannelID: &channelID,
		ContactID: &contactID,
		VariantID: &variantID,
		Status:    model.LogSecondSent,
		CreatedAt: now,
	}); err != nil {
		return fmt.Errorf("append log: %w", err)
	}
	metrics.MessagesTotal.WithLabelValues("sent", "second").Inc()

	f.mu.Lock()
	delete(f.eligible, contactID)
	f.mu.Unlock()
	return nil
}

// keyedMutex hands out one mutex per key and forgets it once unused.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[int64]*refMutex
}

type refMutex struct {
	sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key int64) (unlock func()) {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = map[int64]*refMutex{}
	}
	m, ok := k.locks[key]
	if !ok {
		m = &refMutex{}
		k.locks[key] = m
	}
	m.refs++
	k.mu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		k.mu.Lock()
		m.refs--
		if m.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
