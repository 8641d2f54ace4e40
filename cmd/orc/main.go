// orc is the orchestration CLI: session lifecycle, artifact CRUD, gate
// evaluation and dispatch instruction generation over one session tree.
package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mastergrief/convex-medical-starter-sub003/internal/config"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/logging"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/orchestrator"
	"github.com/mastergrief/convex-medical-starter-sub003/internal/session"
)

var (
	flagBase    string
	flagSession string
	flagConfig  string
	flagJSON    bool
	flagVerbose bool
)

var rootCmd = &cobra.Command{
	Use:   "orc",
	Short: "Multi-agent orchestration over a session directory tree",
	Long: `orc manages orchestration sessions: prompts, plans, handoffs,
orchestrator state, linked memories, evidence chains and phase gates.

Sessions live under <base>/sessions/. Most commands operate on the
session named by --session (or ORCH_SESSION), defaulting to the most
recently active one.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logCfg := logging.Config{
			Level:      cfg.Logging.Level,
			Dir:        cfg.Logging.Dir,
			Console:    cfg.Logging.Console,
			Categories: cfg.Logging.Categories,
		}
		if flagVerbose {
			logCfg.Level = "debug"
			logCfg.Console = true
		}
		return logging.Initialize(logCfg)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		logging.Sync()
		logging.CloseAll()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagBase, "base", "", "base directory holding sessions/ (default from config)")
	rootCmd.PersistentFlags().StringVar(&flagSession, "session", "", "session id (default $ORCH_SESSION, then most recent)")
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "config file path")
	rootCmd.PersistentFlags().BoolVar(&flagJSON, "json", false, "emit raw JSON")
	rootCmd.PersistentFlags().BoolVarP(&flagVerbose, "verbose", "v", false, "debug logging to console")
}

// loadConfig resolves config file + env + flags, flags winning.
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return nil, err
	}
	if flagBase != "" {
		cfg.Base.Dir = flagBase
	}
	return cfg, nil
}

// sessionID resolves the target session: --session, then ORCH_SESSION,
// then empty meaning most recent.
func sessionID() string {
	if flagSession != "" {
		return flagSession
	}
	return os.Getenv("ORCH_SESSION")
}

// openFacade binds to the target session.
func openFacade() (*orchestrator.Orchestrator, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return orchestrator.Open(cfg, sessionID())
}

// newManager returns the session manager for lifecycle commands that do
// not need a bound facade.
func newManager() (*session.Manager, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	return session.NewManager(cfg.Base.Dir, cfg.History.MaxEntries), cfg, nil
}

func main() {
	godotenv.Load()
	if err := rootCmd.Execute(); err != nil {
		printFailure(err)
		os.Exit(1)
	}
}

// printFailure renders a command error: structured JSON under --json,
// one styled line otherwise.
func printFailure(err error) {
	if flagJSON {
		printJSON(orchestrator.NewFailure(err))
		return
	}
	fmt.Fprintln(os.Stderr, errorStyle.Render("error: ")+err.Error())
}
