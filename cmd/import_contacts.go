package cmd

import (
	"fmt"
	"os"

	"github.com/jmehdipour/campaign-orchestrator/internal/config"
	"github.com/jmehdipour/campaign-orchestrator/internal/logger"
	"github.com/jmehdipour/campaign-orchestrator/internal/service/contacts"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var importContactsCmd = &cobra.Command{
	Use:   "import-contacts <file.csv>",
	Short: "Replace the contact list with rows of phone,var1,var2",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		log := logger.Init(cfg.Log.Level)

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("open %s: %w", args[0], err)
		}
		defer f.Close()

		st, err := openStores(cfg, log, false)
		if err != nil {
			return err
		}
		defer st.Close()

		res, err := contacts.New(st.Store, log).Import(cmd.Context(), f)
		for _, bad := range res.Invalid {
			log.Warn("rejected row", zap.Int("line", bad.Line), zap.String("value", bad.Value), zap.String("reason", bad.Reason))
		}
		if err != nil {
			return err
		}
		fmt.Printf(">> imported %d contacts (%d invalid, %d duplicates)\n", res.Imported, len(res.Invalid), res.Duplicates)
		return nil
	},
}
