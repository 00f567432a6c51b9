package initializer

import (
	"io"
	"log/slog"
	"os"

	"github.com/amirasaad/btcfx/pkg/config"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/log"
)

var (
	infoColor  = lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	warnColor  = lipgloss.AdaptiveColor{Light: "#EE6FF8", Dark: "#EE6FF8"}
	errorColor = lipgloss.AdaptiveColor{Light: "#FF6B6B", Dark: "#FF6B6B"}
	debugColor = lipgloss.AdaptiveColor{Light: "#7E57C2", Dark: "#7E57C2"}
)

// SetupLogger builds the process logger on stderr and makes it the slog
// default. stdout is left to command output.
func SetupLogger(cfg config.Log) *slog.Logger {
	logger := newLogger(os.Stderr, cfg)
	slog.SetDefault(logger)
	return logger
}

func newLogger(w io.Writer, cfg config.Log) *slog.Logger {
	styles := log.DefaultStyles()
	for level, s := range map[log.Level]struct {
		icon  string
		color lipgloss.AdaptiveColor
	}{
		log.ErrorLevel: {"❌", errorColor},
		log.WarnLevel:  {"⚠️", warnColor},
		log.InfoLevel:  {"ℹ️", infoColor},
		log.DebugLevel: {"🐛", debugColor},
	} {
		styles.Levels[level] = lipgloss.NewStyle().
			SetString(s.icon).
			Bold(true).
			Padding(0, 1).
			Foreground(s.color)
	}

	// Keys that carry feed state get their own colours.
	keyColors := map[string]lipgloss.AdaptiveColor{
		"error":     errorColor,
		"kind":      errorColor,
		"breaker":   warnColor,
		"feed":      infoColor,
		"pair":      infoColor,
		"arbitrage": warnColor,
		"prefix":    debugColor,
		"caller":    debugColor,
		"time":      debugColor,
	}
	for key, color := range keyColors {
		styles.Keys[key] = lipgloss.NewStyle().Foreground(color)
		styles.Values[key] = lipgloss.NewStyle().Bold(true)
	}

	formatter := log.TextFormatter
	if cfg.Format == "json" {
		formatter = log.JSONFormatter
	}

	logger := log.NewWithOptions(w, log.Options{
		ReportCaller:    cfg.Level < 0,
		ReportTimestamp: true,
		TimeFormat:      cfg.TimeFormat,
		Level:           log.Level(cfg.Level),
		Prefix:          cfg.Prefix,
		Formatter:       formatter,
	})
	logger.SetStyles(styles)

	return slog.New(logger)
}
