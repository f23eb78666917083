package ratelimit

import (
	"fmt"

	redis "github.com/redis/go-redis/v9"
	limiter "github.com/ulule/limiter/v3"
	"github.com/ulule/limiter/v3/drivers/store/memory"
	limiterredis "github.com/ulule/limiter/v3/drivers/store/redis"
)

const storePrefix = "cart:ratelimit"

// New builds a limiter for a formatted rate such as "300-M". Counters live in
// Redis when a client is given so every API replica shares them, otherwise in
// process memory.
func New(rate string, client redis.UniversalClient) (*limiter.Limiter, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("ratelimit: parse rate %q: %w", rate, err)
	}
	opts := limiter.StoreOptions{Prefix: storePrefix}
	var store limiter.Store
	if client != nil {
		store, err = limiterredis.NewStoreWithOptions(client, opts)
		if err != nil {
			return nil, fmt.Errorf("ratelimit: redis store: %w", err)
		}
	} else {
		store = memory.NewStoreWithOptions(opts)
	}
	return limiter.New(store, parsed), nil
}
