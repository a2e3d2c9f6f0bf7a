// Package cli implements the operator command line on top of ApplicationService.
package cli

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"fulfillment/internal/bootstrap"
	"fulfillment/internal/config"
	"fulfillment/internal/logging"
	"fulfillment/internal/seed"
)

type commandContext struct {
	configFlag   string
	memoryFlag   bool
	seedFlag     string
	operatorFlag string

	configOnce sync.Once
	config     *config.Config
	configErr  error

	runtime *bootstrap.Runtime
	logger  *zap.Logger
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, _, _, err := config.Load(strings.TrimSpace(c.configFlag))
		if err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
	})
	return c.config, c.configErr
}

// ensureRuntime builds the services once per invocation. In memory mode the
// store starts empty unless --seed names a dataset ("demo" for the built-in one).
func (c *commandContext) ensureRuntime(ctx context.Context) (*bootstrap.Runtime, error) {
	if c.runtime != nil {
		return c.runtime, nil
	}
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	if c.logger == nil {
		logger, err := logging.NewFromConfig(cfg)
		if err != nil {
			return nil, err
		}
		c.logger = logger
	}

	memory := c.memoryFlag || cfg.Database.URL == ""
	rt, err := bootstrap.Build(ctx, cfg, c.logger, bootstrap.Options{Memory: memory})
	if err != nil {
		return nil, err
	}

	if c.seedFlag != "" {
		ds := seed.Demo()
		if c.seedFlag != "demo" {
			if ds, err = seed.LoadFile(c.seedFlag); err != nil {
				rt.Close()
				return nil, err
			}
		}
		if _, err := seed.Apply(ctx, rt.Store, ds); err != nil {
			rt.Close()
			return nil, err
		}
	}

	c.runtime = rt
	return rt, nil
}

func (c *commandContext) close() {
	if c.runtime != nil {
		c.runtime.Close()
		c.runtime = nil
	}
	if c.logger != nil {
		c.logger.Sync() //nolint:errcheck
	}
}

// NewRootCommand returns the fulfillment command tree.
func NewRootCommand() *cobra.Command {
	return newRootCommand(&commandContext{})
}

func newRootCommand(ctx *commandContext) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "fulfillment",
		Short:         "Scan-match and ship customer orders",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if shouldSkipConfig(cmd) {
				return nil
			}
			_, err := ctx.ensureConfig()
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			ctx.close()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&ctx.configFlag, "config", "c", "", "Configuration file path")
	flags.BoolVar(&ctx.memoryFlag, "memory", false, "Use the in-memory store instead of Postgres")
	flags.StringVar(&ctx.seedFlag, "seed", "", `Seed the store before running ("demo" or a JSON file)`)
	flags.StringVar(&ctx.operatorFlag, "operator", "", "Operator id recorded on scans")

	rootCmd.AddCommand(newScanCommand(ctx))
	rootCmd.AddCommand(newProgressCommand(ctx))
	rootCmd.AddCommand(newScansCommand(ctx))
	rootCmd.AddCommand(newFinalizeCommand(ctx))
	rootCmd.AddCommand(newShipmentCommand(ctx))
	rootCmd.AddCommand(newStationCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))
	rootCmd.AddCommand(newConfigCommand(ctx))

	return rootCmd
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

var errScanFailures = errors.New("one or more scans were not accepted")

func requireArgs(n int, usage string) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) < n {
			return fmt.Errorf("usage: %s", usage)
		}
		return nil
	}
}
