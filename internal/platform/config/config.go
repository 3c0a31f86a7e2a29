package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Server captures process level configuration for the exchange engine.
type Server struct {
	Addr             string
	Environment      string
	TrustedIssuerDID string
	IssuerKeyID      string
	IssuerPublicKey  string
	ChallengeTTL     time.Duration
	OfferTTL         time.Duration
	LedgerTimeout    time.Duration
	CursorInterval   time.Duration
	LedgerRPCURL     string
	CursorStreams    []string
	DatabaseURL      string
	RedisAddr        string
	KafkaBrokers     string
	EventTopic       string
}

// Defaults kept as package vars so tests and main can reference one source.
var (
	ChallengeTTL   = 5 * time.Minute
	OfferTTL       = 14 * 24 * time.Hour
	LedgerTimeout  = 15 * time.Second
	CursorInterval = 10 * time.Second
)

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() Server {
	cfg := Server{
		Addr:             envOr("CREDEX_ADDR", ":8080"),
		Environment:      envOr("CREDEX_ENV", "development"),
		TrustedIssuerDID: os.Getenv("CREDEX_TRUSTED_ISSUER"),
		IssuerKeyID:      envOr("CREDEX_ISSUER_KEY_ID", "default"),
		IssuerPublicKey:  os.Getenv("CREDEX_ISSUER_PUBLIC_KEY"),
		ChallengeTTL:     envDuration("CREDEX_CHALLENGE_TTL", ChallengeTTL),
		OfferTTL:         envDuration("CREDEX_OFFER_TTL", OfferTTL),
		LedgerTimeout:    envDuration("CREDEX_LEDGER_TIMEOUT", LedgerTimeout),
		CursorInterval:   envDuration("CREDEX_CURSOR_INTERVAL", CursorInterval),
		LedgerRPCURL:     os.Getenv("CREDEX_LEDGER_RPC_URL"),
		CursorStreams:    splitList(envOr("CREDEX_CURSOR_STREAMS", "CredentialIssued")),
		DatabaseURL:      os.Getenv("CREDEX_DATABASE_URL"),
		RedisAddr:        os.Getenv("CREDEX_REDIS_ADDR"),
		KafkaBrokers:     os.Getenv("CREDEX_KAFKA_BROKERS"),
		EventTopic:       envOr("CREDEX_EVENT_TOPIC", "credex.exchange.events"),
	}
	return cfg
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
		// plain integers are treated as seconds
		if n, err := strconv.Atoi(v); err == nil {
			return time.Duration(n) * time.Second
		}
	}
	return fallback
}
