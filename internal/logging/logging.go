// Package logging wraps log/slog with a filtering handler that silences
// third-party library chatter unless the level is debug.
package logging

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"strings"
)

const kernelPackagePrefix = "github.com/localcoder/agentkernel"

// ParseLevel converts a string log level to slog.Level. Unknown values
// fall back to warn rather than erroring, matching the permissive config
// loading elsewhere in the kernel.
func ParseLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// filteringHandler suppresses logs emitted from outside the kernel's own
// packages unless the configured level is debug, so a noisy dependency
// (the LLM client's HTTP transport, the git library, etc.) doesn't drown
// out kernel-relevant output at info/warn/error levels.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func newFilteringHandler(handler slog.Handler, minLevel slog.Level) *filteringHandler {
	return &filteringHandler{handler: handler, minLevel: minLevel}
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return level >= h.minLevel && h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || h.isKernelPackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

func (h *filteringHandler) isKernelPackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	fullName := fn.Name()
	file, _ := fn.FileLine(pc)
	return strings.Contains(fullName, kernelPackagePrefix) || strings.Contains(file, "agentkernel/")
}

// New builds a slog.Logger writing text-formatted records to w, filtered
// at minLevel with third-party suppression above debug.
func New(minLevel slog.Level, w *os.File) *slog.Logger {
	base := slog.NewTextHandler(w, &slog.HandlerOptions{Level: minLevel})
	return slog.New(newFilteringHandler(base, minLevel))
}

// Default returns a logger at info level writing to stderr, used when no
// explicit configuration has been loaded yet (e.g. during config parsing
// itself).
func Default() *slog.Logger {
	return New(slog.LevelInfo, os.Stderr)
}
