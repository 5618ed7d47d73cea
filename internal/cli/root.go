package cli

import (
	"fmt"
	"os"

	"github.com/lazypower/mfu/internal/client"
	"github.com/lazypower/mfu/internal/config"
	"github.com/lazypower/mfu/internal/store"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var (
	flagConfig   string
	flagDB       string
	flagLogLevel string
	flagServer   string
	flagLocal    bool
)

var rootCmd = &cobra.Command{
	Use:   "mfu",
	Short: "Track the files you use most",
	Long: "mfu keeps a ranked, time-decayed list of the most frequently used files. " +
		"Each access bumps a file's score; every idle day takes a point away.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVar(&flagConfig, "config", "", "Config file (default ~/.mfu/config.toml)")
	rootCmd.PersistentFlags().StringVar(&flagDB, "db", "", "Database path (default ~/.mfu/mfu.db)")
	rootCmd.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&flagServer, "server", "", "Server URL (default $MFU_URL or http://127.0.0.1:37778)")
	rootCmd.PersistentFlags().BoolVar(&flagLocal, "local", false, "Open the database directly even if a server is running")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(accessCmd)
	rootCmd.AddCommand(moveCmd)
	rootCmd.AddCommand(forgetCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(watchCmd)
	rootCmd.AddCommand(decayCmd)
}

// loadConfig resolves config from file, env and flags, in that order.
func loadConfig() (config.Config, error) {
	path := flagConfig
	if path == "" {
		var err error
		path, err = config.DefaultPath()
		if err != nil {
			return config.Config{}, err
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return cfg, err
	}
	if flagDB != "" {
		cfg.Database.Path = flagDB
	}
	if flagLogLevel != "" {
		cfg.Log.Level = flagLogLevel
	}
	return cfg, nil
}

func newLogger(cfg config.Config) *logrus.Logger {
	log := logrus.New()
	log.SetOutput(os.Stderr)
	level, err := logrus.ParseLevel(cfg.Log.Level)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: unknown log level %q, using info\n", cfg.Log.Level)
		level = logrus.InfoLevel
	}
	log.SetLevel(level)
	return log
}

// openDB opens the database named by cfg, or the default one.
func openDB(cfg config.Config) (*store.DB, error) {
	dbPath := cfg.Database.Path
	if dbPath == "" {
		var err error
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}
	return store.Open(dbPath)
}

// remote returns a client when a server is reachable and --local is unset.
// Going through the server keeps its observers informed.
func remote() *client.Client {
	if flagLocal {
		return nil
	}
	c := client.New(flagServer)
	if !c.Healthy() {
		return nil
	}
	return c
}
