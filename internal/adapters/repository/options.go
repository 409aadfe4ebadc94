package repository

// Option configures Open.
type Option func(*options)

type options struct {
	path      string
	dsn       string
	redisAddr string
	redisKey  string
}

func newOptions(opts ...Option) options {
	o := options{
		path:      "data",
		redisAddr: "localhost:6379",
		redisKey:  "paddle:ledger",
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithPath sets the directory (csv) or file (bolt, sqlite) to use.
func WithPath(path string) Option {
	return func(o *options) {
		if path != "" {
			o.path = path
		}
	}
}

// WithDSN sets the Postgres connection string.
func WithDSN(dsn string) Option {
	return func(o *options) { o.dsn = dsn }
}

// WithRedis sets the Redis address (host:port or redis:// URL) and key.
func WithRedis(addr, key string) Option {
	return func(o *options) {
		if addr != "" {
			o.redisAddr = addr
		}
		if key != "" {
			o.redisKey = key
		}
	}
}
