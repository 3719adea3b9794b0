// SPDX-License-Identifier: MPL-2.0

package comms

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/nats-io/nats-server/v2/server"
)

const natsLogPrefix = "nats: "

// natsLogger routes embedded server output through slog. Trace lines are
// only emitted when trace is set.
type natsLogger struct {
	logger *slog.Logger
	trace  bool
}

func newNATSLogger(logger *slog.Logger, trace bool) server.Logger {
	if logger == nil {
		logger = slog.Default()
	}
	return &natsLogger{logger: logger, trace: trace}
}

func (n *natsLogger) log(level slog.Level, format string, v []any, attrs ...slog.Attr) {
	if !n.logger.Enabled(context.Background(), level) {
		return
	}
	n.logger.LogAttrs(context.Background(), level, natsLogPrefix+fmt.Sprintf(format, v...), attrs...)
}

func (n *natsLogger) Noticef(format string, v ...any) { n.log(slog.LevelInfo, format, v) }
func (n *natsLogger) Warnf(format string, v ...any)   { n.log(slog.LevelWarn, format, v) }
func (n *natsLogger) Errorf(format string, v ...any)  { n.log(slog.LevelError, format, v) }
func (n *natsLogger) Debugf(format string, v ...any)  { n.log(slog.LevelDebug, format, v) }

func (n *natsLogger) Fatalf(format string, v ...any) {
	n.log(slog.LevelError, format, v, slog.String("level", "fatal"))
	os.Exit(1)
}

func (n *natsLogger) Tracef(format string, v ...any) {
	if n.trace {
		n.log(slog.LevelDebug, format, v, slog.String("level", "trace"))
	}
}
