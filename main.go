package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/JoshPattman/resumestudio/app"
	"github.com/JoshPattman/resumestudio/events"
	"github.com/JoshPattman/resumestudio/graph"
	"github.com/JoshPattman/resumestudio/sources"
	"github.com/JoshPattman/resumestudio/studio"
	"github.com/MatusOllah/slogcolor"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
)

const usage = `usage:
  resumestudio run -job <file|url> -resume <file> [-config path] [-debug]
  resumestudio serve [-config path] [-debug]`

const shutdownGrace = 30 * time.Second

func main() {
	if len(os.Args) < 2 {
		fail(usage)
	}
	cmd, args := os.Args[1], os.Args[2:]

	fset := flag.NewFlagSet(cmd, flag.ExitOnError)
	configPath := fset.String("config", "./config.json", "path to a .json or .yaml config file")
	debug := fset.Bool("debug", false, "enable debug logging")
	jobRef := fset.String("job", "", "job post file or URL (run only)")
	resumePath := fset.String("resume", "", "existing resume: .pdf, .docx, .txt or .md (run only)")
	fset.Parse(args)

	logLevel := slog.LevelInfo
	if *debug {
		logLevel = slog.LevelDebug
	}
	logger := newLogger(logLevel)

	// A missing .env is fine.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	logger.Info("Reading config", "path", *configPath)
	cfg, err := LoadConfig(*configPath, isFlagSet(fset, "config"))
	if err != nil {
		fail(err)
	}

	switch cmd {
	case "run":
		if *jobRef == "" {
			fail("-job is required\n" + usage)
		}
		err = runInteractive(ctx, cfg, logger, *jobRef, *resumePath)
	case "serve":
		err = serve(ctx, cfg, logger)
	default:
		fail(usage)
	}
	if err != nil {
		fail(err)
	}
}

func newLogger(level slog.Level) *slog.Logger {
	opts := slogcolor.DefaultOptions
	opts.Level = level
	opts.MsgColor = color.New(color.FgMagenta)
	opts.SrcFileMode = slogcolor.Nop
	return slog.New(slogcolor.NewHandler(os.Stderr, opts))
}

func fail(args ...any) {
	fmt.Println(args...)
	os.Exit(1)
}

func isFlagSet(fset *flag.FlagSet, name string) bool {
	set := false
	fset.Visit(func(f *flag.Flag) {
		if f.Name == name {
			set = true
		}
	})
	return set
}

// buildStudio wires agents, storage, sinks and observers from cfg.
// Background studios keep running threads after the request that started them returns.
func buildStudio(ctx context.Context, cfg Config, logger *slog.Logger, extraObservers []graph.Observer, background bool, cleanup *closers) (*studio.Studio, error) {
	logger.Info("Creating agents", "provider", cfg.Provider)
	a, err := buildAgents(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	store, err := openCheckpointStore(ctx, cfg, logger, cleanup)
	if err != nil {
		return nil, err
	}
	sink, err := buildSink(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	observers, err := buildObservers(cfg, logger, cleanup)
	if err != nil {
		return nil, err
	}
	return studio.New(a, store, logger, studio.Options{
		MaxRevisions:   cfg.MaxRevisions,
		RecursionLimit: cfg.RecursionLimit,
		Observers:      append(observers, extraObservers...),
		Sink:           sink,
		Background:     background,
	})
}

func runInteractive(ctx context.Context, cfg Config, logger *slog.Logger, jobRef, resumePath string) error {
	tstart := time.Now()
	var cleanup closers
	defer cleanup.close()

	logger.Info("Reading job post", "ref", jobRef)
	jobPost, err := sources.ReadJobPost(ctx, jobRef)
	if err != nil {
		return err
	}
	var resume string
	if resumePath != "" {
		logger.Info("Reading resume", "path", resumePath)
		resume, err = sources.ReadResume(resumePath)
		if err != nil {
			return err
		}
	}

	s, err := buildStudio(ctx, cfg, logger, nil, false, &cleanup)
	if err != nil {
		return err
	}
	t, err := NewSession(s, os.Stdin, os.Stdout).Run(ctx, studio.StartRequest{JobPost: jobPost, Resume: resume})
	if err != nil {
		return err
	}
	logger.Info("Everything finished", "thread_id", t.ID, "time_taken", time.Since(tstart))
	return nil
}

func serve(ctx context.Context, cfg Config, logger *slog.Logger) error {
	var cleanup closers
	defer cleanup.close()

	hub := events.NewHub(logger)
	go hub.Run(ctx)

	s, err := buildStudio(ctx, cfg, logger, []graph.Observer{hub}, true, &cleanup)
	if err != nil {
		return err
	}
	logger.Info("Server preparation succsessful")
	server := app.New(s, logger, app.Options{
		Events:         hub.ServeWS,
		FetchJobPost: func(ctx context.Context, url string) (string, error) {
			return sources.FetchJobPost(ctx, url, sources.PublicAddressesOnly())
		},
		AllowedOrigins: cfg.HTTP.AllowedOrigins,
	})
	runErr := server.Run(ctx, cfg.HTTP.Addr)

	logger.Info("Waiting for running threads", "grace", shutdownGrace)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Warn("Running threads were cancelled and can be retried", "err", err)
	}
	return runErr
}
