package poller

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/actionsystem/redis-gateway/pkg/gateway"
	"go.uber.org/zap"
)

// Poller reads one key on a fixed interval and prints each value.
type Poller struct {
	gw       *gateway.Gateway
	key      string
	interval time.Duration
	out      io.Writer
	logger   *zap.SugaredLogger

	reads atomic.Int64
}

func New(gw *gateway.Gateway, key string, interval time.Duration, out io.Writer, logger *zap.SugaredLogger) *Poller {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Poller{
		gw:       gw,
		key:      key,
		interval: interval,
		out:      out,
		logger:   logger,
	}
}

// Key returns the key being polled
func (p *Poller) Key() string {
	return p.key
}

// Read fetches the current integer value of the key, nil when it is absent,
// unparsable or zero.
func (p *Poller) Read(ctx context.Context) *int {
	p.reads.Add(1)
	return gateway.GetAs(ctx, p.gw, p.key, nil, gateway.Pointer(gateway.Int))
}

// Reads returns how many reads the poller has issued
func (p *Poller) Reads() int64 {
	return p.reads.Load()
}

// Run prints the value of the key every interval until ctx is done. It only
// returns an error when writing to the output fails.
func (p *Poller) Run(ctx context.Context) error {
	p.logger.Infow("Polling Redis key", "key", p.key, "interval", p.interval)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	// a read in flight at shutdown completes instead of printing the default
	readCtx := context.WithoutCancel(ctx)

	for {
		if ctx.Err() != nil {
			p.logger.Infow("Polling stopped", "key", p.key, "reads", p.Reads())
			return nil
		}

		if _, err := fmt.Fprintln(p.out, Format(p.Read(readCtx))); err != nil {
			return fmt.Errorf("write value: %w", err)
		}

		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// Format renders a polled value, using redis-cli's "(nil)" for no value.
func Format(v *int) string {
	if v == nil {
		return "(nil)"
	}
	return strconv.Itoa(*v)
}
