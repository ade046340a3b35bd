package server

import (
	"net"
	"net/url"
	"os"
)

// dbDSNFromEnv prefers a full DATABASE_URL and otherwise assembles the DSN
// from the individual DB_* variables with local-dev defaults.
func dbDSNFromEnv() string {
	if dsn := os.Getenv("DATABASE_URL"); dsn != "" {
		return dsn
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.UserPassword(envOr("DB_USER", "app"), envOr("DB_PASSWORD", "app")),
		Host:     net.JoinHostPort(envOr("DB_HOST", "127.0.0.1"), envOr("DB_PORT", "5432")),
		Path:     "/" + envOr("DB_NAME", "rates_and_roles"),
		RawQuery: "sslmode=" + envOr("DB_SSLMODE", "disable"),
	}
	return u.String()
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
