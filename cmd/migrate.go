package main

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/okian/podium/internal/adapters/repository/sqlstore"
	"github.com/okian/podium/internal/config"
	"github.com/okian/podium/pkg/logger"
)

// errNoSQLStore is returned when migrate runs against the memory backend.
var errNoSQLStore = errors.New("migrate needs a sql store_backend (sqlite, postgres or mysql)")

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate [up|down|VERSION]",
		Short: "Run the embedded schema migrations of the configured SQL store",
		Long: `Migrate the configured store_backend using store_dsn.
  up       migrate to the latest version (default)
  down     roll back every migration
  VERSION  migrate up or down to that version`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.Context())
			if err != nil {
				return err
			}
			direction := "up"
			if len(args) == 1 {
				direction = args[0]
			}
			target, err := migrationTarget(direction)
			if err != nil {
				return err
			}
			if cfg.StoreBackend == config.StoreMemory {
				return errNoSQLStore
			}

			res, err := sqlstore.Migrate(cfg.StoreBackend, cfg.StoreDSN, target)
			if err != nil {
				return err
			}
			logger.Get().Info(cmd.Context(), "migration finished",
				logger.String("backend", cfg.StoreBackend),
				logger.Uint64("from", uint64(res.From)),
				logger.Uint64("to", uint64(res.To)),
				logger.Bool("changed", res.Changed))
			if !res.Changed {
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s schema already at version %d\n", cfg.StoreBackend, res.To)
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "%s schema migrated from version %d to %d\n", cfg.StoreBackend, res.From, res.To)
			return err
		},
	}
}

// migrationTarget maps the command argument onto sqlstore.Migrate targets.
func migrationTarget(arg string) (int, error) {
	switch arg {
	case "up":
		return -1, nil
	case "down":
		return 0, nil
	}
	v, err := strconv.Atoi(arg)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("invalid migration target %q: want up, down or a version", arg)
	}
	return v, nil
}
