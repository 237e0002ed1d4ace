package server

import (
	"log/slog"
	"os"
	"time"

	"github.com/mattn/go-colorable"
	"github.com/topi314/tint"
)

// SetupLogger installs the process wide default logger.
func SetupLogger(cfg LogConfig) {
	var handler slog.Handler
	switch cfg.Format {
	case LogFormatJSON:
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			AddSource: cfg.AddSource,
			Level:     cfg.Level,
		})
	default:
		handler = tint.NewHandler(colorable.NewColorable(os.Stdout), &tint.Options{
			AddSource:  cfg.AddSource,
			Level:      cfg.Level,
			NoColor:    cfg.NoColor,
			TimeFormat: time.StampMilli,
		})
	}
	slog.SetDefault(slog.New(handler))
}
