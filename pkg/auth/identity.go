package auth

import "pulserelay/pkg/config"

// Role represents the resolved caller role for a request.
type Role int

const (
	RoleUnauth Role = iota
	RoleClient
	RoleAdmin
)

// SecConfig mirrors the security-related configuration used to drive
// authentication, CORS and rate limiting behavior. Put here so limiter.go
// and gateway.go can reference the shared type.
type SecConfig struct {
	AllowedOrigins []string
	RPS            float64
	Burst          int
	ClientKeys     map[string]struct{}
	AdminKeys      map[string]struct{}
}

// SecFromConfig derives the middleware security config from the loaded
// server config.
func SecFromConfig(cfg *config.Config) SecConfig {
	sc := SecConfig{
		AllowedOrigins: cfg.Security.CORS.AllowedOrigins,
		RPS:            cfg.Security.RateLimit.RPS,
		Burst:          cfg.Security.RateLimit.Burst,
		ClientKeys:     map[string]struct{}{},
		AdminKeys:      map[string]struct{}{},
	}
	for _, k := range cfg.Security.APIKeys.Client {
		sc.ClientKeys[k] = struct{}{}
	}
	for _, k := range cfg.Security.APIKeys.Admin {
		sc.AdminKeys[k] = struct{}{}
	}
	return sc
}

// Open reports whether no API keys are configured at all, in which case
// the gateway admits every request as an admin. Meant for local use.
func (c SecConfig) Open() bool {
	return len(c.ClientKeys) == 0 && len(c.AdminKeys) == 0
}
