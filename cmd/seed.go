package cmd

import (
	"context"
	"fmt"

	"github.com/jmehdipour/campaign-orchestrator/internal/config"
	"github.com/jmehdipour/campaign-orchestrator/internal/logger"
	"github.com/jmehdipour/campaign-orchestrator/internal/model"
	"github.com/jmehdipour/campaign-orchestrator/internal/repository"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const variantSlots = 3

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create default settings and the empty variant slots",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)

		st, err := openStores(cfg, log, false)
		if err != nil {
			return err
		}
		defer st.Close()

		created, err := seedDefaults(cmd.Context(), st.Store)
		if err != nil {
			return err
		}
		log.Info("seed completed", zap.Strings("created", created))
		return nil
	},
}

// seedDefaults writes whatever is missing and leaves existing rows alone.
func seedDefaults(ctx context.Context, store repository.Store) ([]string, error) {
	var created []string

	cur, err := store.GetSettings(ctx)
	if err != nil {
		return nil, fmt.Errorf("get settings: %w", err)
	}
	if cur == nil {
		if _, err := store.SaveSettings(ctx, model.DefaultSettings()); err != nil {
			return nil, fmt.Errorf("save settings: %w", err)
		}
		created = append(created, "settings")
	}

	vs, err := store.ListVariants(ctx)
	if err != nil {
		return nil, fmt.Errorf("list variants: %w", err)
	}
	have := map[int]bool{}
	for _, v := range vs {
		have[v.Ordinal] = true
	}
	for ord := 1; ord <= variantSlots; ord++ {
		if have[ord] {
			continue
		}
		if _, err := store.UpsertVariant(ctx, model.Variant{
			Ordinal:                   ord,
			SecondMessageDelaySeconds: model.DefaultSecondMessageDelaySeconds,
		}); err != nil {
			return nil, fmt.Errorf("create variant %d: %w", ord, err)
		}
		created = append(created, fmt.Sprintf("variant %d", ord))
	}
	return created, nil
}
