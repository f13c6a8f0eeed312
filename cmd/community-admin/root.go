package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/tendant/community-admin/internal/logging"
	"github.com/tendant/community-admin/pkg/community"
	"github.com/tendant/community-admin/pkg/community/config"
)

// runtime is what every subcommand needs once configuration is loaded
type runtime struct {
	cfg    *config.Config
	logger *slog.Logger
}

func NewRootCommand() *cobra.Command {
	var configFile, envFile string
	rt := &runtime{}

	rootCmd := &cobra.Command{
		Use:   "community-admin",
		Short: "Community admin backend",
		Long: `Community admin backend

Serves artifact and media downloads, signed upload URLs and the admin
collections. Settings come from the environment or a YAML file.`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "env" {
				return nil
			}
			if envFile != "" {
				if err := godotenv.Load(envFile); err != nil {
					return fmt.Errorf("failed to load env file %s: %w", envFile, err)
				}
			}

			cfg, err := config.Load(configFile)
			if err != nil {
				return err
			}
			rt.cfg = cfg
			rt.logger = logging.Setup(os.Stderr, cfg.Environment, cfg.LogLevel, cfg.LogFormat)
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "YAML config file (optional)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "dotenv file loaded before reading the environment")

	rootCmd.AddCommand(newServeCommand(rt))
	rootCmd.AddCommand(newSignPutCommand(rt))
	rootCmd.AddCommand(newSignGetCommand(rt))
	rootCmd.AddCommand(newDownloadCommand(rt))
	rootCmd.AddCommand(newEnvCommand())

	return rootCmd
}

// open connects the stores and builds the service. The returned close func
// is never nil.
func (rt *runtime) open(ctx context.Context) (*config.Stores, community.ObjectRepository, community.Service, func(), error) {
	stores, err := rt.cfg.OpenStores(ctx)
	if err != nil {
		return nil, nil, nil, func() {}, fmt.Errorf("failed to open document store: %w", err)
	}
	closeStores := func() {
		if err := stores.Close(context.Background()); err != nil {
			rt.logger.Warn("Failed to close document store", "err", err)
		}
	}

	objects, err := rt.cfg.BuildObjectRepository(ctx)
	if err != nil {
		closeStores()
		return nil, nil, nil, func() {}, fmt.Errorf("failed to initialize object store: %w", err)
	}

	svc, err := config.BuildService(stores, objects, rt.logger)
	if err != nil {
		closeStores()
		return nil, nil, nil, func() {}, err
	}
	return stores, objects, svc, closeStores, nil
}

func newEnvCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables read at startup",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), config.Usage())
		},
	}
}
