package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/lavariyalabs/snapy/internal/clock"
	"github.com/lavariyalabs/snapy/internal/config"
	"github.com/lavariyalabs/snapy/internal/progress"
	"github.com/lavariyalabs/snapy/internal/reminder"
	"github.com/lavariyalabs/snapy/internal/session"
	"github.com/lavariyalabs/snapy/internal/storage"
	"github.com/lavariyalabs/snapy/internal/storage/postgres"
	"github.com/lavariyalabs/snapy/internal/sync"
	"github.com/lavariyalabs/snapy/internal/web"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		slog.Error("snapy failed", "error", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	flags := pflag.NewFlagSet("snapy", pflag.ContinueOnError)
	config.RegisterFlags(flags)
	addSource := flags.String("add-source", "", "Add a new source (local path or git URL)")
	runSync := flags.Bool("sync", false, "Run a sync of all sources")
	serve := flags.Bool("serve", false, "Start the HTTP server")
	importPath := flags.String("import", "", "Import a single deck file")
	unitID := flags.Int64("unit", 0, "Unit ID for --import of a plain card file")
	if err := flags.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return nil
		}
		return err
	}

	cfg, err := config.Load(flags)
	if err != nil {
		return err
	}

	log := newLogger(os.Stderr, cfg.Log)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := storage.Open(cfg.Database.Path)
	if err != nil {
		return err
	}
	defer db.Close()
	log.Info("Database opened successfully", "path", cfg.Database.Path)

	syncer := sync.New(db, log, clock.Real(), cfg.Sync.ReposDir)

	if *addSource != "" {
		return addNewSource(ctx, log, db, *addSource)
	}

	if *importPath != "" {
		report, err := syncer.ImportFile(ctx, *importPath, *unitID)
		fmt.Printf("Found %d cards, %d created, %d errors.\n", report.Parsed, report.Created, len(report.Errors))
		if len(report.Errors) > 0 {
			fmt.Println("\nErrors:")
			for _, e := range report.Errors {
				fmt.Printf("- %s\n", e)
			}
		}
		return err
	}

	if *runSync {
		report, err := syncer.RunSync(ctx)
		if err != nil {
			return err
		}
		for _, e := range report.Errors {
			fmt.Printf("- %s\n", e)
		}
		return nil
	}

	if *serve {
		store, closeStore, err := openProgressStore(ctx, cfg.Database, db)
		if err != nil {
			return err
		}
		defer closeStore()
		return runServer(ctx, log, cfg, db, store, syncer)
	}

	flags.Usage()
	return nil
}

func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}

// openProgressStore returns the store that holds progress and responses.
// The catalog always lives in the SQLite database.
func openProgressStore(ctx context.Context, cfg config.Database, db *storage.DB) (progress.Store, func(), error) {
	if cfg.Driver != "postgres" {
		return db, func() {}, nil
	}
	pg, err := postgres.Open(ctx, cfg.DSN)
	if err != nil {
		return nil, nil, err
	}
	return pg, func() { pg.Close() }, nil
}

func addNewSource(ctx context.Context, log *slog.Logger, db *storage.DB, path string) error {
	sourceType := storage.SourceType(path)
	if sourceType == storage.SourceLocal {
		abs, err := filepath.Abs(path)
		if err != nil {
			return fmt.Errorf("failed to resolve %s: %w", path, err)
		}
		path = abs
	}

	existing, err := db.FindSourceByPath(ctx, path)
	if err != nil {
		return err
	}
	if existing != nil {
		log.Info("Source already exists", "id", existing.ID, "path", path)
		return nil
	}

	id, err := db.InsertSource(ctx, path, sourceType)
	if err != nil {
		return err
	}
	log.Info("Source added", "id", id, "type", sourceType, "path", path)
	return nil
}

func runServer(ctx context.Context, log *slog.Logger, cfg *config.Config, db *storage.DB, store progress.Store, syncer *sync.Syncer) error {
	clk := clock.Real()
	study := session.NewService(db, store, clk, &cfg.Scheduler, log)

	if cfg.Reminder.Enabled {
		reminders := reminder.New(db, store, reminder.LogNotifier{Log: log}, clk, log, cfg.Reminder.Interval)
		if err := reminders.Start(ctx); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           web.NewServer(db, study, syncer, clk, log, cfg.Session.Limit),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Starting server", "addr", cfg.Server.Addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server failed: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
