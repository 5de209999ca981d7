package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/glabrego/ttrss-cli/internal/app"
	"github.com/glabrego/ttrss-cli/internal/config"
	"github.com/glabrego/ttrss-cli/internal/storage"
	"github.com/glabrego/ttrss-cli/internal/ttrss"
	"github.com/glabrego/ttrss-cli/internal/tui"
)

func main() {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Fatal("config error", "err", err)
	}

	logger, closeLog, err := newFileLogger(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		log.Fatal("log file error", "path", cfg.LogPath, "err", err)
	}
	defer closeLog()

	repo, err := storage.NewRepository(cfg.DBPath)
	if err != nil {
		log.Fatal("storage init error", "err", err)
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := repo.Init(ctx); err != nil {
		log.Fatal("storage schema error", "err", err)
	}
	if err := repo.CheckWritable(ctx); err != nil {
		log.Fatal(fmt.Sprintf("storage write check failed. Verify TTRSS_DB_PATH is writable: %s", cfg.DBPath), "err", err)
	}

	settings, err := repo.LoadSettings(ctx, storage.Settings{
		CounterIntervalSeconds: cfg.CounterIntervalSeconds,
		PageSize:               cfg.PageSize,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not load settings (%v), using defaults\n", err)
		settings = storage.Settings{CounterIntervalSeconds: cfg.CounterIntervalSeconds, PageSize: cfg.PageSize}
	}

	client := ttrss.NewClient(cfg.APIURL, &http.Client{Timeout: 20 * time.Second}, rate.NewLimiter(rate.Limit(cfg.RateLimit), 1))
	session := app.NewSession(client, app.Credentials{
		Username: cfg.Username,
		Password: cfg.Password,
	}, logger, settings.PageSize)
	session.SetCounterInterval(time.Duration(settings.CounterIntervalSeconds) * time.Second)

	model := tui.NewModel(session)
	model.SetIntervalSaver(func(d time.Duration) error {
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer saveCancel()
		settings.CounterIntervalSeconds = int(d / time.Second)
		return repo.SaveSettings(saveCtx, settings)
	})

	program := tea.NewProgram(model, tea.WithAltScreen())
	session.OnCounterResync(func() { program.Send(tui.CountersResyncedMsg{}) })

	_, runErr := program.Run()

	closeCtx, closeCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer closeCancel()
	if err := session.Close(closeCtx); err != nil {
		logger.Warn("session close", "err", err)
	}
	if runErr != nil {
		log.Fatal("tui error", "err", runErr)
	}
}

// newFileLogger writes logfmt records to path. The terminal belongs to the
// TUI, so nothing is logged to stderr while it runs.
func newFileLogger(path, level string) (*log.Logger, func(), error) {
	lvl, err := log.ParseLevel(level)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, err
	}
	logger := log.NewWithOptions(f, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.RFC3339,
		Level:           lvl,
		Formatter:       log.LogfmtFormatter,
	})
	logger.Info("ttrss-cli started", "pid", os.Getpid())
	return logger, func() {
		logger.Info("ttrss-cli shutting down")
		_ = f.Close()
	}, nil
}
