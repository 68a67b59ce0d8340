package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/config"
	"github.com/printrelay/backend/internal/logging"
)

// Version is set during build
var Version = "dev"

type globalOptions struct {
	configPath string
	verbose    bool
}

func newRootCmd() *cobra.Command {
	opts := &globalOptions{}

	root := &cobra.Command{
		Use:   "printsend",
		Short: "Send documents to the print relay",
		Long: `printsend converts documents to PDF, uploads them to the print shop's
document store and waits for the shop to post the amount due.

Configuration is read from a YAML file (created with defaults on first run),
an optional .env file next to it and PRINTRELAY_* / cloud environment variables.`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "printrelay.yaml", "path to the configuration file")
	root.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "log pipeline activity to stderr")

	root.AddCommand(newSendCmd(opts))
	root.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "printsend %s\n", Version)
		},
	})
	return root
}

// load reads the configuration and builds a logger quiet enough for a terminal.
func (o *globalOptions) load() (*config.AppConfig, *zap.Logger, error) {
	cfg, err := config.LoadConfig(o.configPath)
	if err != nil {
		return nil, nil, err
	}
	level := "warn"
	if o.verbose {
		level = "debug"
	}
	log, err := logging.New(level, true)
	if err != nil {
		return nil, nil, err
	}
	return cfg, log, nil
}
