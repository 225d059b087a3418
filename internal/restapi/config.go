package restapi

// Config tunes the REST adapter's Fiber app and route prefix.
type Config struct {
	Prefix           string // mount point for every gateway-core route, default "/api/v1"
	BindAddr         string
	CORSAllowOrigins []string
	BodyLimitBytes   int
}

// DefaultConfig returns the spec's REST adapter defaults.
func DefaultConfig() Config {
	return Config{
		Prefix:           "/api/v1",
		BindAddr:         ":8080",
		CORSAllowOrigins: []string{"*"},
		BodyLimitBytes:   10 * 1024 * 1024,
	}
}
