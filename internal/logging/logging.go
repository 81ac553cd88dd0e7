package logging

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/phsym/console-slog"
	slogmulti "github.com/samber/slog-multi"
)

// Preinit installs a console handler before config is loaded so that
// config errors themselves get readable output.
func Preinit() {
	slog.SetDefault(slog.New(console.NewHandler(os.Stderr, &console.HandlerOptions{
		AddSource: true,
		Level:     slog.LevelDebug,
	})))
}

// Setup installs the final logger: console always, plus a JSON file
// sink when logFile is set. Returns a cleanup func closing the file.
func Setup(logFile string) (func(), error) {
	handlers := []slog.Handler{
		console.NewHandler(os.Stderr, &console.HandlerOptions{
			AddSource: true,
			Level:     slog.LevelDebug,
		}),
	}
	cleanup := func() {}

	if logFile != "" {
		f, err := os.OpenFile(logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return nil, fmt.Errorf("open log file %q: %w", logFile, err)
		}
		handlers = append(handlers, slog.NewJSONHandler(f, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
		cleanup = func() { _ = f.Close() }
	}

	slog.SetDefault(slog.New(slogmulti.Fanout(handlers...)))
	return cleanup, nil
}
