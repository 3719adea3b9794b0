// SPDX-License-Identifier: MPL-2.0

package signals

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"
)

const DEFAULT_SHUTDOWN_TIMEOUT = 10 * time.Second

// HandleInterrupt blocks until SIGINT or SIGTERM and then gives
// onInterrupt up to timeout to shut down.
func HandleInterrupt(timeout time.Duration, onInterrupt func(context.Context)) {
	if timeout <= 0 {
		timeout = DEFAULT_SHUTDOWN_TIMEOUT
	}
	ctx, stopInterruptNotify := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stopInterruptNotify()
	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	onInterrupt(ctx)
}
