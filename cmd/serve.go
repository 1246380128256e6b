package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jmehdipour/campaign-orchestrator/internal/campaign"
	"github.com/jmehdipour/campaign-orchestrator/internal/channel"
	"github.com/jmehdipour/campaign-orchestrator/internal/config"
	"github.com/jmehdipour/campaign-orchestrator/internal/db"
	httpSrv "github.com/jmehdipour/campaign-orchestrator/internal/http"
	"github.com/jmehdipour/campaign-orchestrator/internal/kafka"
	"github.com/jmehdipour/campaign-orchestrator/internal/logger"
	"github.com/jmehdipour/campaign-orchestrator/internal/schedule"
	"github.com/jmehdipour/campaign-orchestrator/internal/service/contacts"
	"github.com/jmehdipour/campaign-orchestrator/internal/supervisor"
	"github.com/jmehdipour/campaign-orchestrator/internal/worker"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run HTTP API, campaign scheduler, supervisor and event consumer",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)
		defer func() { _ = log.Sync() }()

		st, err := openStores(cfg, log, true)
		if err != nil {
			return err
		}
		defer st.Close()

		var rds *redis.Client
		if cfg.RateLimit.Enabled {
			rds, err = db.NewRedisClient(cfg.Redis)
			if err != nil {
				// rate limiting is optional; the API runs without it
				log.Warn("redis unavailable, rate limiting disabled", zap.Error(err))
			} else {
				defer func() { _ = rds.Close() }()
			}
		}

		clock := schedule.Real{}

		health := campaign.NewHealthTracker(st.Store, clock, cfg.Campaign.ReconcileInterval, log)
		gateway := channel.NewHTTPGateway(channel.GatewayConfig{
			BaseURL:       cfg.Channel.BaseURL,
			Token:         cfg.Channel.Token,
			TimeoutMs:     cfg.Channel.TimeoutMs,
			FailThreshold: cfg.Channel.Breaker.FailThreshold,
			OpenForMs:     cfg.Channel.Breaker.OpenForMs,
		}, health, log)
		followups := campaign.NewFollowUpScheduler(st.Store, gateway, clock, campaign.FollowUpConfig{
			DefaultDelay: cfg.Campaign.DefaultFollowUpDelay,
			SendTimeout:  cfg.Campaign.SendTimeout,
		}, log)

		var opts []campaign.Option
		if st.Archiving != nil {
			opts = append(opts, campaign.WithRunHook(st.Archiving.SetRunID))
		}
		sched := campaign.NewScheduler(st.Store, gateway, health, followups, clock, campaign.Config{
			SendTimeout:         cfg.Campaign.SendTimeout,
			WaitingRecheck:      cfg.Campaign.WaitingRecheck,
			RestartSettle:       cfg.Campaign.RestartSettle,
			UnavailableMaxDelay: cfg.Campaign.UnavailableMaxDelay,
		}, log, opts...)

		sup := supervisor.New(supervisorConfig(cfg.Supervisor), clock, log)
		sched.SetFaultReporter(sup)
		health.SetFaultReporter(sup)
		followups.SetFaultReporter(sup)
		sup.Manage(sched, followups, gateway)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		workerCtx, cancelWorker := context.WithCancel(ctx)
		defer cancelWorker()
		workerDone := make(chan struct{})
		if cfg.Kafka.Enabled {
			consumer := kafka.NewConsumer(kafka.ConfigFrom(cfg.Kafka))
			defer func() { _ = consumer.Close() }()
			handler := channel.NewEventHandler(st.Store, health, followups, log)
			w := worker.NewEventWorker(consumer, handler, sup, log)
			go func() {
				defer close(workerDone)
				_ = w.Run(workerCtx)
			}()
		} else {
			close(workerDone)
			log.Warn("kafka disabled, channel events will not be consumed")
		}

		server := httpSrv.NewServer(cfg, httpSrv.Deps{
			Store:      st.Store,
			Campaign:   sched,
			FollowUps:  followups,
			Supervisor: sup,
			Gateway:    gateway,
			Contacts:   contacts.New(st.Store, log),
			Archive:    st.Archive,
			Redis:      rds,
			Log:        log,
		})

		errCh := make(chan error, 1)
		go func() {
			errCh <- server.Start(cfg.HTTP.Addr)
		}()

		select {
		case <-ctx.Done():
			log.Info("signal received, shutting down")
		case err := <-errCh:
			if err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error("http server exited", zap.Error(err))
			}
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := sup.Shutdown(shutdownCtx); err != nil {
			log.Warn("supervisor shutdown", zap.Error(err))
		}
		_ = server.Shutdown(shutdownCtx)
		cancelWorker()
		<-workerDone

		return nil
	},
}

func supervisorConfig(c config.SupervisorConfig) supervisor.Config {
	out := supervisor.DefaultConfig()
	if c.BaseDelay > 0 {
		out.BaseDelay = c.BaseDelay
	}
	if c.MaxDelay > 0 {
		out.MaxDelay = c.MaxDelay
	}
	if c.Factor > 0 {
		out.Factor = c.Factor
	}
	if c.Window > 0 {
		out.Window = c.Window
	}
	if c.MaxRestarts > 0 {
		out.MaxRestarts = c.MaxRestarts
	}
	if c.Settle > 0 {
		out.Settle = c.Settle
	}
	if c.TransientPatterns != nil {
		out.TransientPatterns = c.TransientPatterns
	}
	return out
}
