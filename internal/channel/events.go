package channel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/metrics"
	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/jmehdipour/campaign-orchestrator/internal/util"
	"go.uber.org/zap"
)

// ReplyHandler is notified when an inbound message comes from a contact who
// was sent the first message and has not replied yet.
type ReplyHandler interface {
	OnContactReplied(ctx context.Context, contactID int64) error
}

type EventStore interface {
	UpdateConnection(ctx context.Context, id int64, fn func(*model.Connection)) (model.Connection, error)
	FindContactByAddress(ctx context.Context, digits string) (*model.Contact, error)
	AppendReceived(ctx context.Context, m model.ReceivedMessage) (model.ReceivedMessage, error)
}

// EventHandler applies gateway lifecycle events to storage.
type EventHandler struct {
	store    EventStore
	notifier ConnectionNotifier
	replies  ReplyHandler
	log      *zap.Logger
	now      func() time.Time
}

func NewEventHandler(store EventStore, notifier ConnectionNotifier, replies ReplyHandler, log *zap.Logger) *EventHandler {
	return &EventHandler{
		store:    store,
		notifier: notifier,
		replies:  replies,
		log:      log.Named("events"),
		now:      time.Now,
	}
}

func (h *EventHandler) Handle(ctx context.Context, ev model.Envelope) error {
	typ, ok := model.ParseEventType(ev.Type)
	if !ok {
		h.log.Warn("unknown event type", zap.String("type", ev.Type), zap.String("id", ev.ID))
		return nil
	}
	metrics.EventsTotal.WithLabelValues(typ.String()).Inc()

	if typ == model.EventInbound {
		return h.inbound(ctx, ev)
	}
	return h.lifecycle(ctx, typ, ev)
}

func (h *EventHandler) lifecycle(ctx context.Context, typ model.EventType, ev model.Envelope) error {
	_, err := h.store.UpdateConnection(ctx, ev.ChannelID, func(c *model.Connection) {
		switch typ {
		case model.EventConnecting:
			c.Status = model.ConnectionConnecting
		case model.EventPaired:
			c.Status = model.ConnectionConnecting
			if ev.Pairing != "" {
				p := ev.Pairing
				c.PairingPayload = &p
			}
		case model.EventReady:
			c.Status = model.ConnectionConnected
			c.PairingPayload = nil
			if addr := util.NormalizeAddress(ev.Address); addr != "" {
				c.Address = &addr
			}
		case model.EventAuthFailure:
			c.Status = model.ConnectionError
			c.PairingPayload = nil
		case model.EventDisconnected:
			c.Status = model.ConnectionDisconnected
			c.PairingPayload = nil
		}
	})
	if errors.Is(err, repository.ErrNotFound) {
		h.log.Warn("event for unknown connection", zap.Int64("channel_id", ev.ChannelID), zap.String("type", typ.String()))
		return nil
	}
	if err != nil {
		return fmt.Errorf("update connection %d: %w", ev.ChannelID, err)
	}

	h.log.Info("connection state", zap.Int64("channel_id", ev.ChannelID), zap.String("type", typ.String()), zap.String("reason", ev.Reason))

	if (typ == model.EventReady || typ == model.EventDisconnected) && h.notifier != nil {
		h.notifier.ConnectionChanged(ctx)
	}
	return nil
}

func (h *EventHandler) inbound(ctx context.Context, ev model.Envelope) error {
	digits := util.NormalizeAddress(ev.Address)
	contact, err := h.store.FindContactByAddress(ctx, digits)
	if err != nil {
		return fmt.Errorf("find contact: %w", err)
	}

	at := ev.At
	if at.IsZero() {
		at = h.now()
	}
	msg := model.ReceivedMessage{
		Address:    digits,
		Body:       ev.Body,
		ReceivedAt: at,
	}
	if ev.ChannelID != 0 {
		id := ev.ChannelID
		msg.ChannelID = &id
	}

	var replyErr error
	if contact != nil {
		id := contact.ID
		msg.ContactID = &id
		if contact.Status == model.ContactSent && contact.RespondedAt == nil && h.replies != nil {
			h.log.Info("contact replied", zap.Int64("contact_id", id))
			if err := h.replies.OnContactReplied(ctx, id); err != nil {
				replyErr = fmt.Errorf("reply contact %d: %w", id, err)
			}
		}
	}

	if _, err := h.store.AppendReceived(ctx, msg); err != nil {
		return errors.Join(replyErr, fmt.Errorf("store received: %w", err))
	}
	return replyErr
}

// MarkResponded is a ReplyHandler that only records the reply. Used where no
// follow-up scheduler runs in-process.
type MarkResponded struct {
	Contacts interface {
		UpdateContact(ctx context.Context, id int64, fn func(*model.Contact)) (model.Contact, error)
	}
	Now func() time.Time
}

func (m MarkResponded) OnContactReplied(ctx context.Context, contactID int64) error {
	now := time.Now
	if m.Now != nil {
		now = m.Now
	}
	_, err := m.Contacts.UpdateContact(ctx, contactID, func(c *model.Contact) {
		if c.Status != model.ContactSent {
			return
		}
		c.Status = model.ContactResponded
		if c.RespondedAt == nil {
			t := now()
			c.RespondedAt = &t
		}
	})
	return err
}
