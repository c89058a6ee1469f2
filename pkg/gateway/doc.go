// Package gateway wraps a go-redis client with a connection step that waits
// for the server to come up and a typed "get with default" accessor.
//
// Example usage:
//
//	gw, err := gateway.New(ctx, gateway.Options{
//		Host:     "127.0.0.1",
//		Password: os.Getenv("REDIS_PASSWD"),
//		Timeout:  30,
//	})
//	if err != nil {
//		if errors.Is(err, gateway.ErrAuth) {
//			log.Fatal("bad credentials")
//		}
//		log.Fatal(err)
//	}
//	defer gw.Close()
//
//	limit := gw.Get(ctx, "limit", 100)
//	ratio := gateway.GetAs(ctx, gw, "ratio", 0.5, gateway.Float64)
//
// New retries once per second while the store is not up yet (refused,
// unreachable, dropped connections, LOADING replies) and gives up after
// Options.Timeout attempts. Authentication failures are never retried.
//
// Reads never fail. A missing key, a transport error, a value that does not
// convert, and a converted value that is zero or empty all produce the
// caller's default. Note the last case: a stored "0" read with a default of
// 100 returns 100.
package gateway
