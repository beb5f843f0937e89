// Package cli provides the dbbrowse command-line interface.
package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/koustreak/dbbrowse/internal/config"
	"github.com/koustreak/dbbrowse/internal/database/factory"
	"github.com/koustreak/dbbrowse/internal/effects"
	"github.com/koustreak/dbbrowse/internal/errs"
	"github.com/koustreak/dbbrowse/internal/filestore"
	"github.com/koustreak/dbbrowse/internal/filestore/minio"
	"github.com/koustreak/dbbrowse/internal/logger"
	"github.com/koustreak/dbbrowse/internal/persist"
)

// Version is set at build time.
var Version = "0.1.0"

var cfgFile string

// configKey is used to store config in context.
type configKey struct{}

// NewRootCmd creates and returns the root command.
func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "dbbrowse",
		Short: "Browse Postgres, MySQL and SQLite databases",
		Long: `dbbrowse lists tables, pages through rows, searches and runs ad-hoc
queries against saved Postgres, MySQL and SQLite connections.

Saved connections, query history and cached table pages live in the data
directory (~/.dbbrowse by default) or in a MinIO bucket.`,
		Version: Version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if cmd.Name() == "help" || cmd.Name() == "completion" || cmd.Name() == "__complete" {
				return nil
			}
			cfg, err := config.Load(cfgFile, cmd.Root().PersistentFlags())
			if err != nil {
				return err
			}
			cmd.SetContext(context.WithValue(cmd.Context(), configKey{}, cfg))
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "directory holding saved connections, history and cache")
	rootCmd.PersistentFlags().String("log.level", "", "log level (debug|info|warn|error)")
	rootCmd.PersistentFlags().String("log.format", "", "log format (console|json)")

	rootCmd.AddCommand(newConnectionsCommand())
	rootCmd.AddCommand(newTablesCommand())
	rootCmd.AddCommand(newColumnsCommand())
	rootCmd.AddCommand(newRowsCommand())
	rootCmd.AddCommand(newSearchCommand())
	rootCmd.AddCommand(newQueryCommand())
	rootCmd.AddCommand(newHistoryCommand())
	rootCmd.AddCommand(newServeCommand())

	return rootCmd
}

// Execute runs the root command.
func Execute() error {
	rootCmd := NewRootCmd()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return err
	}
	return nil
}

// GetConfig retrieves the config from the command context.
func GetConfig(ctx context.Context) *config.Config {
	if c, ok := ctx.Value(configKey{}).(*config.Config); ok {
		return c
	}
	cfg, err := config.Load("", nil)
	if err != nil {
		return &config.Config{DataDir: config.DefaultDataDir()}
	}
	return cfg
}

// session is everything a command needs: config, logger and a loaded
// orchestrator.
type session struct {
	Config *config.Config
	Log    *logger.Logger
	Orch   *effects.Orchestrator
}

// newSession opens the document store, loads saved state and wires the
// orchestrator. The returned cleanup flushes pending writes.
func newSession(cmd *cobra.Command) (*session, func(), error) {
	ctx := cmd.Context()
	cfg := GetConfig(ctx)
	log := logger.New(cfg.LoggerConfig())

	files, err := openFileStore(ctx, cfg.FileStoreConfig())
	if err != nil {
		return nil, nil, err
	}

	store := persist.New(files, persist.Options{
		DebounceDelay: cfg.Browser.DebounceDelay,
		HistoryLimit:  cfg.Browser.HistoryLimit,
		Logger:        log,
	})
	pool := cfg.PoolOptions()
	orch := effects.New(factory.New(log), store, stderrNotifier(cmd.ErrOrStderr()), effects.Options{
		PageSize:        cfg.Browser.PageSize,
		RefreshThrottle: cfg.Browser.RefreshThrottle,
		Pool:            &pool,
		Logger:          log,
	})

	if _, err := orch.LoadState(ctx); err != nil {
		_ = files.Close()
		return nil, nil, err
	}

	cleanup := func() {
		if err := orch.Shutdown(context.WithoutCancel(ctx)); err != nil {
			log.ErrorWith("failed to save state", err, nil)
		}
	}
	return &session{Config: cfg, Log: log, Orch: orch}, cleanup, nil
}

// openFileStore picks the document backend named by cfg.Provider.
func openFileStore(ctx context.Context, cfg *filestore.Config) (filestore.Store, error) {
	switch cfg.Provider {
	case filestore.ProviderMinIO:
		return minio.New(ctx, cfg)
	case filestore.ProviderLocal, "":
		return filestore.NewLocal(cfg.Dir), nil
	default:
		return nil, errs.New(errs.ErrKindInvalidInput, fmt.Sprintf("unknown storage backend %q", cfg.Provider))
	}
}

// stderrNotifier prints notices as "level: message" lines.
func stderrNotifier(w io.Writer) effects.Notifier {
	return effects.NotifierFunc(func(level effects.Level, msg string) {
		fmt.Fprintf(w, "%s: %s\n", level, msg)
	})
}

// resolveConnection finds a saved connection by ID or, failing that, by
// name (case-insensitive).
func resolveConnection(orch *effects.Orchestrator, ref string) (persist.ConnectionInfo, error) {
	if strings.TrimSpace(ref) == "" {
		return persist.ConnectionInfo{}, errs.New(errs.ErrKindInvalidInput, "--conn is required")
	}
	conns := orch.Connections()
	for _, c := range conns {
		if c.ID == ref {
			return c, nil
		}
	}
	var match *persist.ConnectionInfo
	for i := range conns {
		if strings.EqualFold(conns[i].Name, ref) {
			if match != nil {
				return persist.ConnectionInfo{}, errs.New(errs.ErrKindConflict,
					fmt.Sprintf("more than one connection is named %q, use the ID", ref))
			}
			match = &conns[i]
		}
	}
	if match == nil {
		return persist.ConnectionInfo{}, errs.New(errs.ErrKindNotFound, fmt.Sprintf("no saved connection %q", ref))
	}
	return *match, nil
}

// addConnFlag registers the --conn flag shared by the browsing commands.
func addConnFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("conn", "c", "", "saved connection ID or name")
}

// sessionConnection opens a session and resolves --conn in one step.
func sessionConnection(cmd *cobra.Command) (*session, persist.ConnectionInfo, func(), error) {
	s, cleanup, err := newSession(cmd)
	if err != nil {
		return nil, persist.ConnectionInfo{}, nil, err
	}
	ref, _ := cmd.Flags().GetString("conn")
	conn, err := resolveConnection(s.Orch, ref)
	if err != nil {
		cleanup()
		return nil, persist.ConnectionInfo{}, nil, err
	}
	return s, conn, cleanup, nil
}

// printJSON writes v as indented JSON to the command's output.
func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
