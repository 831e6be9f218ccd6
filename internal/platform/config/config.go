package config

import (
	"os"
	"time"
)

// Server captures process level configuration.
type Server struct {
	Addr          string
	MetricsAddr   string
	PostgresDSN   string
	RedisURL      string
	JWTSigningKey string
	SMTPAddr      string
	SMTPFrom      string

	// ChallengeTTL is how long an OTP challenge stays verifiable.
	ChallengeTTL time.Duration
	// ChallengeMaxAttempts is the verification budget per challenge.
	ChallengeMaxAttempts int
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	addr := os.Getenv("ZERON_ADDR")
	if addr == "" {
		addr = ":8080"
	}
	metricsAddr := os.Getenv("ZERON_METRICS_ADDR")
	if metricsAddr == "" {
		metricsAddr = ":9090"
	}

	jwtSigningKey := os.Getenv("JWT_SIGNING_KEY")
	if jwtSigningKey == "" {
		// Development default - must be overridden in production
		jwtSigningKey = "dev-secret-key-change-in-production"
	}

	ttl := 10 * time.Minute
	if raw := os.Getenv("OTP_CHALLENGE_TTL"); raw != "" {
		if parsed, err := time.ParseDuration(raw); err == nil && parsed > 0 {
			ttl = parsed
		}
	}

	return Server{
		Addr:                 addr,
		MetricsAddr:          metricsAddr,
		PostgresDSN:          os.Getenv("POSTGRES_DSN"),
		RedisURL:             os.Getenv("REDIS_URL"),
		JWTSigningKey:        jwtSigningKey,
		SMTPAddr:             os.Getenv("SMTP_ADDR"),
		SMTPFrom:             os.Getenv("SMTP_FROM"),
		ChallengeTTL:         ttl,
		ChallengeMaxAttempts: 3,
	}
}
