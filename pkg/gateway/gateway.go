package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// DefaultHost is used when Options.Host is empty
	DefaultHost = "127.0.0.1"
	// DefaultPort is used when Options.Port is zero
	DefaultPort = 6379
	// DefaultTimeout is the default number of one-second connection attempts
	DefaultTimeout = 30

	probeMessage = "test_value"

	// retryInterval is the fixed delay between liveness probes
	retryInterval = time.Second
)

// Recorder receives gateway events for metrics. *metrics.Metrics satisfies it.
// RecordRead gets the caller's key, which is unbounded; keep it off metric labels.
type Recorder interface {
	RecordProbe(ctx context.Context, outcome string)
	RecordRead(ctx context.Context, key, result string)
}

type nopRecorder struct{}

func (nopRecorder) RecordProbe(context.Context, string)        {}
func (nopRecorder) RecordRead(context.Context, string, string) {}

// Options configures a Gateway. Zero values select the defaults.
type Options struct {
	Host     string
	Port     int
	Password string
	// Timeout is both the number of liveness probes and, since probes are
	// one second apart, roughly how long New waits for the store in seconds.
	Timeout int

	Logger  *zap.SugaredLogger
	Metrics Recorder
}

// Gateway owns a validated connection to a Redis server.
type Gateway struct {
	client  *redis.Client
	opts    Options
	addr    string
	logger  *zap.SugaredLogger
	metrics Recorder
}

// New connects to the store described by opts and blocks until a liveness
// probe succeeds. While the store is not up yet (connection refused, host
// unreachable, connection dropped, or a LOADING reply) the probe is repeated
// once per second for up to opts.Timeout attempts. Authentication failures
// are returned at once.
//
// The returned error is a *ConnectionError or an *AuthError. On error no
// client is left open.
func New(ctx context.Context, opts Options) (*Gateway, error) {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	var recorder Recorder = nopRecorder{}
	if opts.Metrics != nil {
		recorder = opts.Metrics
	}

	if opts.Host == "" {
		opts.Host = DefaultHost
	}
	if opts.Port == 0 {
		logger.Infow("Choosing Redis default port", "port", DefaultPort)
		opts.Port = DefaultPort
	}
	if opts.Timeout < 1 {
		opts.Timeout = DefaultTimeout
	}

	addr := net.JoinHostPort(opts.Host, strconv.Itoa(opts.Port))
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: opts.Password,
		DB:       0,
		// one probe is one round trip; the gateway owns the retry schedule
		MaxRetries: -1,
	})

	g := &Gateway{
		client:  client,
		opts:    opts,
		addr:    addr,
		logger:  logger,
		metrics: recorder,
	}

	if err := g.waitReady(ctx); err != nil {
		client.Close()
		logger.Errorw("Redis gateway construction failed", "addr", addr, "error", err)
		return nil, err
	}

	logger.Infow("Redis connection established", "addr", addr)
	return g, nil
}

// waitReady runs the liveness probe on a constant one second schedule
func (g *Gateway) waitReady(ctx context.Context) error {
	b := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewConstantBackOff(retryInterval), uint64(g.opts.Timeout-1)),
		ctx,
	)

	attempt := 0
	operation := func() error {
		attempt++
		err := g.client.Echo(ctx, probeMessage).Err()
		if err == nil {
			g.metrics.RecordProbe(ctx, "ok")
			return nil
		}

		failure := classify(err)
		g.metrics.RecordProbe(ctx, failure.String())

		switch {
		case failure == failureRefused:
			return &ConnectionError{Addr: g.addr, Refused: true, Err: err}
		case failure.retryable():
			return &ConnectionError{Addr: g.addr, Err: err}
		case failure == failureAuthRequired:
			return backoff.Permanent(&AuthError{Required: true, Err: err})
		case failure == failureAuthInvalid:
			return backoff.Permanent(&AuthError{Err: err})
		default:
			return backoff.Permanent(&ConnectionError{Addr: g.addr, Err: err})
		}
	}

	notify := func(err error, next time.Duration) {
		g.logger.Infow("Redis not reachable yet, retrying",
			"addr", g.addr,
			"reason", classify(err),
			"attempt", attempt,
			"max_attempts", g.opts.Timeout,
			"retry_in", next,
		)
	}

	err := backoff.RetryNotify(operation, b, notify)
	if err == nil {
		return nil
	}

	var connErr *ConnectionError
	var authErr *AuthError
	if !errors.As(err, &connErr) && !errors.As(err, &authErr) {
		// the context ended between attempts
		return &ConnectionError{Addr: g.addr, Err: err}
	}
	return err
}

// Lookup reads the raw string stored at key. found is false when the key
// does not exist.
func (g *Gateway) Lookup(ctx context.Context, key string) (raw string, found bool, err error) {
	raw, err = g.client.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", false, nil
		}
		if f := classify(err); f.retryable() {
			return "", false, &ConnectionError{Addr: g.addr, Refused: f == failureRefused, Err: err}
		}
		return "", false, fmt.Errorf("redis get %q: %w", key, err)
	}
	return raw, true, nil
}

// Get reads key as an integer. It returns def when the key is missing, the
// read fails, the value is not an integer, or the value is zero.
func (g *Gateway) Get(ctx context.Context, key string, def int) int {
	return GetAs(ctx, g, key, def, Int)
}

// Read results reported to the Recorder
const (
	ReadHit         = "hit"
	ReadMiss        = "miss"
	ReadFalsy       = "falsy"
	ReadCoerceError = "coerce_error"
	ReadError       = "read_error"
)

// GetAs reads key and converts it with mapType. Every failure, including a
// missing key, yields def instead of an error, and so does a converted value
// that is falsy (zero, empty, nil).
func GetAs[T any](ctx context.Context, g *Gateway, key string, def T, mapType MapFunc[T]) T {
	raw, found, err := g.Lookup(ctx, key)
	if err != nil {
		g.logger.Warnw("Redis read failed; using default", "key", key, "error", err)
		g.metrics.RecordRead(ctx, key, ReadError)
		return def
	}
	if !found {
		g.metrics.RecordRead(ctx, key, ReadMiss)
		return def
	}
	if mapType == nil {
		g.logger.Errorw("No conversion given for key; using default", "key", key)
		g.metrics.RecordRead(ctx, key, ReadCoerceError)
		return def
	}

	value, err := mapType(raw)
	if err != nil {
		g.logger.Debugw("Redis value cannot be converted; using default",
			"key", key,
			"raw", raw,
			"type", fmt.Sprintf("%T", value),
			"error", err,
		)
		g.metrics.RecordRead(ctx, key, ReadCoerceError)
		return def
	}

	if falsy(value) {
		g.metrics.RecordRead(ctx, key, ReadFalsy)
		return def
	}

	g.metrics.RecordRead(ctx, key, ReadHit)
	return value
}

// Ping checks that the server is still reachable
func (g *Gateway) Ping(ctx context.Context) error {
	if err := g.client.Ping(ctx).Err(); err != nil {
		return &ConnectionError{Addr: g.addr, Refused: IsRefused(err), Err: err}
	}
	return nil
}

// Addr returns the host:port the gateway is connected to
func (g *Gateway) Addr() string {
	return g.addr
}

func (g *Gateway) String() string {
	return fmt.Sprintf("redis gateway connected to %s", g.addr)
}

// Close releases the underlying connection pool
func (g *Gateway) Close() error {
	return g.client.Close()
}
