package lock

// Config holds configuration for the Redis-backed lock service.
type Config struct {
	// Enabled toggles distributed locking. When false, Acquire hands out
	// no-op leases so single-instance deployments can run without Redis.
	Enabled bool `mapstructure:"enabled" default:"false"`
	// Addr is the Redis host:port.
	Addr string `mapstructure:"addr" default:"localhost:6379"`
	// Password is the Redis password.
	Password string `mapstructure:"password" default:""`
	// DB is the Redis database number.
	DB int `mapstructure:"db" default:"0"`
}
