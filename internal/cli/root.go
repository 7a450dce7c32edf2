// Package cli implements the timeblock CLI commands.
package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/rcliao/timeblock/internal/config"
	"github.com/rcliao/timeblock/internal/logging"
	"github.com/rcliao/timeblock/internal/scheduler"
	"github.com/rcliao/timeblock/internal/service"
	"github.com/rcliao/timeblock/internal/store"
)

var (
	dbPath     string
	configPath string
	logLevel   string
	userFlag   string

	cfg = config.Default()
)

// configOptional marks commands that run with defaults when an explicitly
// named config file is missing.
const configOptional = "config-optional"

// RootCmd is the top-level command.
var RootCmd = &cobra.Command{
	Use:   "timeblock",
	Short: "Unified timeblock scheduler",
	Long: "Schedules task work sessions around calendar events and busy time, " +
		"and runs the acceptance gate that guards the scheduler. SQLite-backed, single binary.",
	PersistentPreRun: loadConfig,
}

func init() {
	RootCmd.PersistentFlags().StringVarP(&dbPath, "db", "d", "", "Database path (default: config db_path, $TIMEBLOCK_DB or ~/.timeblock/timeblock.db)")
	RootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Config file (default: $TIMEBLOCK_CONFIG or ~/.timeblock/config.yaml)")
	RootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	RootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User to act on (default: config user)")
}

func loadConfig(cmd *cobra.Command, args []string) {
	path, explicit := config.Path(configPath)
	c, err := config.Load(path, explicit && cmd.Annotations[configOptional] == "")
	if err != nil {
		exitErr("load config", err)
	}
	cfg = c
	logLevel, _ = cmd.Flags().GetString("log-level")
}

func getDBPath() string {
	if dbPath != "" {
		return dbPath
	}
	return cfg.DBPath
}

func getUser() string {
	if userFlag != "" {
		return userFlag
	}
	return cfg.User
}

func newLogger() logging.Logger {
	level := cfg.LogLevel
	if logLevel != "" {
		level = logLevel
	}
	return logging.New(logging.Options{Level: level, Format: cfg.LogFormat})
}

func openStore() (*store.SQLiteStore, error) {
	return store.NewSQLiteStore(getDBPath())
}

func newService(st store.Store, log logging.Logger) *service.Service {
	return service.New(st, scheduler.NewEngine(log), log, cfg.Policy())
}

func exitErr(msg string, err error) {
	fmt.Fprintf(os.Stderr, "error: %s: %v\n", msg, err)
	os.Exit(1)
}
