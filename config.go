package accessledger

import (
	"log/slog"
	"os"
	"time"

	"github.com/privacychain/accessledger/pkg/ident"
)

// Config configures an Engine. Only Paths[0] is used at the
// moment; future versions may use multiple paths for sharding or
// tiering.
type Config struct {
	// Paths contains data directories for the durable store. If
	// empty, the engine runs purely in memory and state does not
	// survive a restart.
	Paths []string
	// MinimumFreeGB is a free-space threshold checked before the
	// durable store opens. Zero disables the check.
	MinimumFreeGB uint
	// Logger is an optional structured logger. If nil, a stderr
	// logger is used.
	Logger *slog.Logger
	// Clock supplies the time used in every validity check. If
	// nil, the system clock is used. Tests inject a fake clock to
	// simulate expiry deterministically.
	Clock ident.Clock
	// AuditRetention bounds how long the in-memory audit trail
	// keeps entries. Zero keeps the full history. The persisted
	// audit stream is unaffected.
	AuditRetention time.Duration
}

// defaultLogger returns a logger that writes text logs to stderr at Info level.
// Applications can inject their own slog.Logger for JSON, different levels, etc.
func defaultLogger() *slog.Logger {
	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})
	return slog.New(h)
}
