package cli

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"fulfillment/internal/adapters/station"
	"fulfillment/internal/adapters/web"
	"fulfillment/internal/config"
	"fulfillment/internal/db"
	"fulfillment/migrations"
)

func newStationCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "station [order-id]",
		Short: "Run the interactive scan station",
		RunE: func(cmd *cobra.Command, args []string) error {
			rt, err := ctx.ensureRuntime(cmd.Context())
			if err != nil {
				return err
			}
			cfg, _ := ctx.ensureConfig()
			opts := station.Options{
				OperatorID: ctx.operatorFlag,
				MaxRetries: cfg.Station.MaxRetries,
				RetryDelay: 200 * time.Millisecond,
				Logger:     ctx.logger,
			}
			if len(args) > 0 {
				opts.OrderID = args[0]
			}
			return station.Run(cmd.Context(), rt.Service, cmd.InOrStdin(), cmd.OutOrStdout(), opts)
		},
	}
}

func newMigrateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			pool, err := db.NewPool(cmd.Context(), cfg.Database.URL, cfg.Database.MaxConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			applied, err := migrations.Apply(cmd.Context(), pool)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if len(applied) == 0 {
				fmt.Fprintln(out, "Schema is up to date.")
				return nil
			}
			for _, name := range applied {
				fmt.Fprintf(out, "applied %s\n", name)
			}
			return nil
		},
	}
}

func newTokenCommand(ctx *commandContext) *cobra.Command {
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token <operator-id>",
		Short: "Issue an API token for a scan operator",
		Args:  requireArgs(1, "token <operator-id>"),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			token, err := web.SignOperatorToken(cfg.Server.JWTSecret, args[0], ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "Token lifetime")
	return cmd
}

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}
	configCmd.AddCommand(newConfigInitCommand())
	configCmd.AddCommand(newConfigValidateCommand(ctx))
	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			}
			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote sample configuration to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "Configuration valid")
			storage := "postgres"
			if cfg.Database.URL == "" {
				storage = "memory"
			}
			fmt.Fprintf(out, "  storage:          %s\n", storage)
			fmt.Fprintf(out, "  serialized types: %s\n", strings.Join(cfg.Matching.SerializedTypes, ", "))
			fmt.Fprintf(out, "  fallback:         %t\n", cfg.Matching.AllowFallback)
			return nil
		},
	}
}
