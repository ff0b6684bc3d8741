// luavm CLI - drives the thread-state core through demo scenarios and
// dumps thread snapshots.
package main

import (
	"fmt"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/muesli/termenv"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/luavm/config"
)

var (
	verbosity  int
	configPath string
	cfg        *config.Config
)

// color is set when stdout is a terminal.
var color = isatty.IsTerminal(os.Stdout.Fd()) || isatty.IsCygwinTerminal(os.Stdout.Fd())

var stdout = termenv.NewOutput(os.Stdout)

var rootCmd = &cobra.Command{
	Use:           "luavm",
	Short:         "Exercise the luavm thread-state core",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if configPath != "" {
			cfg, err = config.LoadFile(configPath)
		} else {
			cfg, err = config.FindAndLoad(".")
		}
		if err != nil {
			return err
		}
		if cfg == nil {
			cfg = config.Default()
		}
		commonlog.Configure(max(verbosity, cfg.Log.Verbosity), nil)
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "log verbosity (repeat for more)")
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "configuration file (default: luavm.toml or luavm.yaml found upwards from the working directory)")
	rootCmd.AddCommand(demoCmd, snapshotCmd, configCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// paint colours s when stdout is a terminal.
func paint(c termenv.Color, s string) string {
	if !color {
		return s
	}
	return stdout.String(s).Foreground(c).String()
}

func ok(s string) string   { return paint(termenv.ANSIGreen, s) }
func fail(s string) string { return paint(termenv.ANSIRed, s) }

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as TOML",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := cfg.Encode()
		if err != nil {
			return err
		}
		if cfg.Path != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "# from %s\n", cfg.Path)
		}
		_, err = cmd.OutOrStdout().Write(data)
		return errors.Wrap(err, "writing configuration")
	},
}
