package main

import (
	"fmt"
	"os"

	"github.com/itstheanurag/coderunner/internal/config"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
)

var configFlag string

var rootCmd = &cobra.Command{
	Use:   "coderunner",
	Short: "coderunner - compile and run untrusted code in a sandbox",
	Long: `coderunner accepts source code in C, C++, Go, Rust, Python2 or Python3,
compiles it if needed and runs it under firejail (or docker) with a CPU limit,
a locked-down filesystem view and a system call allow-list.

The result is classified as CompileTimeError, RuntimeError or Ok.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFlag, "config", "", "Path to a config file (default: ./coderunner.yaml or /etc/coderunner/coderunner.yaml)")
	rootCmd.AddCommand(serveCmd, runCmd, languagesCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	if configFlag != "" {
		return config.LoadFile(configFlag)
	}
	return config.LoadConfig()
}

func newLogger(conf config.LogConfig) (*zerolog.Logger, error) {
	level, err := zerolog.ParseLevel(conf.Level)
	if err != nil {
		return nil, fmt.Errorf("invalid log.level: %w", err)
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	var logger zerolog.Logger
	if conf.Format == "json" {
		logger = zerolog.New(os.Stderr)
	} else {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	}
	logger = logger.Level(level).With().Timestamp().Logger()
	return &logger, nil
}
