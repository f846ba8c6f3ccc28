// Package cmd provides the CLI commands for roomsearch.
package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/roomsearch/internal/catalog"
	"github.com/Aman-CERP/roomsearch/internal/config"
	rserrors "github.com/Aman-CERP/roomsearch/internal/errors"
	"github.com/Aman-CERP/roomsearch/internal/logging"
	"github.com/Aman-CERP/roomsearch/pkg/roomindex"
	"github.com/Aman-CERP/roomsearch/pkg/version"
)

// app carries state shared by the subcommands of one root command.
type app struct {
	debug   bool
	dataDir string

	cfg            *config.Config
	loggingCleanup func()
}

// NewRootCmd creates the root command for the roomsearch CLI.
func NewRootCmd() *cobra.Command {
	a := &app{}

	cmd := &cobra.Command{
		Use:   "roomsearch",
		Short: "Full-text search over chat room events",
		Long: `roomsearch keeps one full-text index per chat room and searches
message bodies by event.

Events are added to a room, committed, and found again by words in their
body. Rooms live under the catalog data directory (~/.roomsearch/data by
default).`,
		Version:       version.Short(),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetVersionTemplate("roomsearch version {{.Version}}\n")

	cmd.PersistentFlags().BoolVar(&a.debug, "debug", false, "Enable debug logging (also written to stderr)")
	cmd.PersistentFlags().StringVar(&a.dataDir, "data-dir", "", "Catalog data directory (overrides config)")

	cmd.PersistentPreRunE = a.start
	cmd.PersistentPostRunE = a.stop

	cmd.AddCommand(newAddCmd(a))
	cmd.AddCommand(newCommitCmd(a))
	cmd.AddCommand(newSearchCmd(a))
	cmd.AddCommand(newInfoCmd(a))
	cmd.AddCommand(newRoomsCmd(a))
	cmd.AddCommand(newDropCmd(a))
	cmd.AddCommand(newDemoCmd(a))
	cmd.AddCommand(newLogsCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, rserrors.FormatForCLI(err))
	}
	return err
}

// start loads configuration and sets up logging.
func (a *app) start(_ *cobra.Command, _ []string) error {
	wd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to get working directory: %w", err)
	}

	cfg, err := config.Load(wd)
	if err != nil {
		return err
	}
	if a.dataDir != "" {
		cfg.Catalog.DataDir = a.dataDir
	}
	a.cfg = cfg

	logCfg := logging.DefaultConfig()
	logCfg.Level = cfg.Logging.Level
	logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
	logCfg.MaxFiles = cfg.Logging.MaxFiles
	if cfg.Logging.File != "" {
		logCfg.FilePath = cfg.Logging.File
	}
	if a.debug {
		logCfg.Level = "debug"
		logCfg.WriteToStderr = true
	}

	cleanup, err := logging.SetupDefault(logCfg)
	if err != nil {
		return fmt.Errorf("failed to setup logging: %w", err)
	}
	a.loggingCleanup = cleanup
	slog.Debug("cli_started",
		slog.String("version", version.Short()),
		slog.String("data_dir", cfg.Catalog.DataDir))
	return nil
}

func (a *app) stop(_ *cobra.Command, _ []string) error {
	if a.loggingCleanup != nil {
		a.loggingCleanup()
		a.loggingCleanup = nil
	}
	return nil
}

// openCatalog opens the configured catalog. The caller closes it.
func (a *app) openCatalog() (*catalog.Catalog, error) {
	catCfg, err := a.cfg.CatalogSettings()
	if err != nil {
		return nil, err
	}
	return catalog.Open(a.cfg.Catalog.DataDir, catCfg)
}

// withRoom opens the catalog, leases roomID and runs fn. The room is
// released and the catalog closed afterwards, flushing staged events.
func (a *app) withRoom(ctx context.Context, roomID string, fn func(*roomindex.RoomIndex) error) (err error) {
	cat, err := a.openCatalog()
	if err != nil {
		return err
	}
	defer func() {
		if cerr := cat.Close(ctx); cerr != nil && err == nil {
			err = cerr
		}
	}()

	idx, release, err := cat.Room(ctx, roomID)
	if err != nil {
		return err
	}
	defer release()

	return fn(idx)
}
