package worker

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/channel"
	"github.com/jmehdipour/campaign-orchestrator/internal/config"
	"github.com/jmehdipour/campaign-orchestrator/internal/db"
	"github.com/jmehdipour/campaign-orchestrator/internal/kafka"
	"github.com/jmehdipour/campaign-orchestrator/internal/logger"
	"github.com/jmehdipour/campaign-orchestrator/internal/metrics"
	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/jmehdipour/campaign-orchestrator/internal/worker"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// eventsCmd records connection status and inbound traffic without running
// the scheduler. Replies only mark the contact as responded; follow-ups need
// the serve process.
var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Consume channel gateway events into storage",
	RunE:  runEvents,
}

type logFaults struct{ log *zap.Logger }

func (l logFaults) Fault(source string, err error) {
	l.log.Error("event fault", zap.String("source", source), zap.Error(err))
}

func runEvents(cmd *cobra.Command, args []string) error {
	// 1) load config
	cfgPath, _ := cmd.Root().PersistentFlags().GetString("config")
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	log := logger.Init(cfg.Log.Level)
	defer func() { _ = log.Sync() }()

	metrics.MustRegister(prometheus.DefaultRegisterer)

	// 2) storage (MySQL; an in-memory store would be invisible to the API process)
	dbx, err := db.NewMySQLConnection(cfg.MySQL)
	if err != nil {
		return fmt.Errorf("mysql connect: %w", err)
	}
	defer dbx.Close()
	store := repository.NewMySQLStore(dbx)

	// 3) kafka consumer
	// same group as serve, so each event is applied once when both run
	kc := kafka.ConfigFrom(cfg.Kafka)
	if kc.GroupID == "" {
		kc.GroupID = "campaign-orchestrator"
	}
	consumer := kafka.NewConsumer(kc)
	defer consumer.Close()

	handler := channel.NewEventHandler(store, nil, channel.MarkResponded{Contacts: store, Now: time.Now}, log)
	w := worker.NewEventWorker(consumer, handler, logFaults{log}, log)

	// 4) graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Info("events worker started", zap.String("topic", cfg.Kafka.Topic), zap.String("group", kc.GroupID))
	return w.Run(ctx)
}
