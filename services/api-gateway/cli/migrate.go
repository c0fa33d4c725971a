package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/ramiqadoumi/go-care-tasks/internal/postgres"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down|status]",
	Short:     "Run database migrations",
	ValidArgs: []string{string(postgres.MigrateUp), string(postgres.MigrateDown), string(postgres.MigrateStatus)},
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	Long: `Connect to PostgreSQL and apply the embedded schema migrations.

"up" (the default) applies pending migrations, "down" rolls back the
latest one and "status" lists what has been applied. Reads the DSN from
--postgres-dsn, POSTGRES_DSN, or the config file. The sqlite store
migrates itself on start.`,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().String("postgres-dsn", "", "PostgreSQL connection string")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	// serve binds the same key; rebind to this command's flag.
	bindFlag("postgres_dsn", cmd.Flags(), "postgres-dsn")

	dir := postgres.MigrateUp
	if len(args) == 1 {
		dir = postgres.MigrateDirection(args[0])
	}
	dsn := viper.GetString("postgres_dsn")
	if dsn == "" {
		return fmt.Errorf("postgres_dsn is required")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := postgres.NewPool(ctx, dsn, 2)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	if err := postgres.Migrate(ctx, pool, dir); err != nil {
		return err
	}
	fmt.Printf("migrate %s complete\n", dir)
	return nil
}
