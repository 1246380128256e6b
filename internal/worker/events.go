package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/kafka"
	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"go.uber.org/zap"
)

// Source is the subset of the Kafka consumer the worker needs.
type Source interface {
	Fetch(ctx context.Context) (kafka.Message, error)
	Commit(ctx context.Context, m kafka.Message) error
}

type Handler interface {
	Handle(ctx context.Context, ev model.Envelope) error
}

type FaultReporter interface {
	Fault(source string, err error)
}

// EventWorker applies channel gateway events in partition order. Every
// message is committed once handled, including poison and failed ones, so
// one bad event never blocks the stream.
type EventWorker struct {
	Source  Source
	Handler Handler
	Faults  FaultReporter
	Log     *zap.Logger

	FetchBackoff time.Duration
}

func NewEventWorker(src Source, h Handler, faults FaultReporter, log *zap.Logger) *EventWorker {
	return &EventWorker{
		Source:       src,
		Handler:      h,
		Faults:       faults,
		Log:          log.Named("events"),
		FetchBackoff: 200 * time.Millisecond,
	}
}

// Run blocks until ctx is cancelled.
func (w *EventWorker) Run(ctx context.Context) error {
	for {
		m, err := w.Source.Fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.Log.Warn("kafka fetch failed", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(w.FetchBackoff):
			}
			continue
		}
		w.process(ctx, m)
	}
}

func (w *EventWorker) process(ctx context.Context, m kafka.Message) {
	var env model.Envelope
	if err := json.Unmarshal(m.Value, &env); err != nil {
		w.Log.Warn("bad event json", zap.Error(err), zap.Int64("offset", m.Offset))
	} else if err := w.handle(ctx, env); err != nil && ctx.Err() == nil {
		w.Log.Error("event handling failed",
			zap.String("id", env.ID), zap.String("type", env.Type), zap.Int64("channel_id", env.ChannelID), zap.Error(err))
		if w.Faults != nil {
			w.Faults.Fault("events", fmt.Errorf("handle %s event %s: %w", env.Type, env.ID, err))
		}
	}

	if err := w.Source.Commit(ctx, m); err != nil && ctx.Err() == nil {
		w.Log.Warn("kafka commit failed", zap.Error(err))
	}
}

// handle runs the handler, turning a panic into an error so the message is
// still committed.
func (w *EventWorker) handle(ctx context.Context, env model.Envelope) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return w.Handler.Handle(ctx, env)
}
