package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/PabloGalante/blue-shark/internal/config"
	"github.com/PabloGalante/blue-shark/internal/observability"
)

// cli carries state shared by every subcommand.
type cli struct {
	cfg *config.Config

	storage   string
	mock      bool
	logLevel  string
	logFormat string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:   "blueshark",
		Short: "Blue Shark AI chat service",
		Long: `Blue Shark talks to Gemini in one of several modes and keeps every
conversation in a single persisted session store.`,
		Example: `  # Start the HTTP and WebSocket API
  $ blueshark serve

  # Chat from the terminal in dual mode
  $ blueshark chat --mode SHARK_TANK

  # Import sessions exported from the browser app
  $ blueshark sessions import ./blue_shark_ai_sessions.json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}
	root.CompletionOptions.DisableDefaultCmd = true

	pf := root.PersistentFlags()
	pf.StringVar(&c.storage, "storage", "", "storage backend: file, sqlite, redis, firestore or memory (overrides BLUESHARK_STORAGE_BACKEND)")
	pf.BoolVar(&c.mock, "mock", false, "use the scripted mock generator instead of Gemini")
	pf.StringVar(&c.logLevel, "log-level", "", "log level (overrides BLUESHARK_LOG_LEVEL)")
	pf.StringVar(&c.logFormat, "log-format", "", "log format: json or console (overrides BLUESHARK_LOG_FORMAT)")

	root.AddCommand(
		newServeCmd(c),
		newChatCmd(c),
		newSessionsCmd(c),
		newModesCmd(c),
	)
	return root
}

func (c *cli) load(cmd *cobra.Command) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	flags := cmd.Flags()
	if flags.Changed("storage") {
		cfg.StorageBackend = config.StorageBackend(c.storage)
	}
	if flags.Changed("mock") {
		cfg.UseMockLLM = c.mock
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = c.logLevel
	}
	if flags.Changed("log-format") {
		cfg.LogFormat = c.logFormat
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	// stdout belongs to command output; logs go to stderr
	observability.Setup(cfg.LogLevel, cfg.LogFormat, os.Stderr)
	c.cfg = cfg
	return nil
}
