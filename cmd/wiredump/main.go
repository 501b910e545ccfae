// Command wiredump inspects message schemas and validates encoded messages.
//
//	wiredump layout --schema api.toml [STRUCT...]
//	wiredump decode --schema api.toml --struct Ping msg.bin
//	wiredump decode --schema api.toml --struct Ping --format json - < msg.bin
//	wiredump decode --schema api.toml --struct Ping --pipe --handles 2 msg.bin
//	wiredump decode --schema api.toml --struct Ping -i msg.bin
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/wippyai/mojo-wire/config"
	"github.com/wippyai/mojo-wire/ipc"
	"github.com/wippyai/mojo-wire/resource"
	"github.com/wippyai/mojo-wire/schema"
	"github.com/wippyai/mojo-wire/system/memsys"
	"github.com/wippyai/mojo-wire/wait"
)

type cliOptions struct {
	schemaPath string
	configPath string
	logLevel   string
	color      string
}

var (
	opts = cliOptions{color: "auto"}

	// Set by before.
	cfg    config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:               "wiredump",
	Short:             "Inspect message layouts and validate encoded messages",
	PersistentPreRunE: before,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.schemaPath, "schema", "s", "", "TOML schema file")
	flags.StringVarP(&opts.configPath, "config", "c", "", "TOML configuration file with codec and pipe limits")
	flags.StringVar(&opts.logLevel, "log-level", "", "Override the configured log level: debug, info, warn, error")
	flags.StringVar(&opts.color, "color", opts.color, "Colour output: auto, always, never")
	_ = rootCmd.MarkPersistentFlagRequired("schema")

	rootCmd.AddCommand(layoutCmd, decodeCmd)
}

func before(cmd *cobra.Command, _ []string) error {
	cfg = config.Default()
	if opts.configPath != "" {
		loaded, err := config.Load(opts.configPath)
		if err != nil {
			return err
		}
		cfg = loaded
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	l, err := config.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	logger = l
	memsys.SetLogger(l.Named("memsys"))
	ipc.SetLogger(l.Named("ipc"))
	wait.SetLogger(l.Named("wait"))
	resource.SetLogger(l.Named("resource"))

	return setupColor(opts.color, cmd.OutOrStdout())
}

func loadSchema() (*schema.Set, error) {
	set, err := schema.LoadFile(opts.schemaPath)
	if err != nil {
		return nil, fmt.Errorf("load schema %s: %w", opts.schemaPath, err)
	}
	logger.Debug("schema loaded", zap.String("path", opts.schemaPath), zap.Int("structs", len(set.Names())))
	return set, nil
}

func main() {
	err := rootCmd.Execute()
	_ = logger.Sync()
	if err != nil {
		fmt.Fprintln(os.Stderr, paint(errorStyle, "Error: "+err.Error()))
		os.Exit(1)
	}
}
