// Package config builds the service configuration from the environment
// so main stays lean.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr string
}

// Ledger captures the chain connection. An empty RPCURL selects the
// in-process backend, which is the development and test mode.
type Ledger struct {
	RPCURL               string
	SignerKeyHex         string
	IdentityRegistryAddr string
	ContentRegistryAddr  string
	Timeout              time.Duration
}

// Hashing carries the deployment salt. The salt is provisioned once
// before launch and must never change afterwards: rotating it would
// invalidate every previously anchored identity hash.
type Hashing struct {
	Salt string
}

// Database holds the two connection strings: the integrity core's own
// pointer/audit database and the forum application database it reads.
type Database struct {
	URL      string
	ForumURL string
}

// RedisConfig configures the optional verification cache.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	VerifyTTL    time.Duration
}

// Kafka configures the optional audit mirror.
type Kafka struct {
	Brokers []string
	Topic   string
}

type Config struct {
	Server  Server
	Ledger  Ledger
	Hashing Hashing
	DB      Database
	Redis   RedisConfig
	Kafka   Kafka
}

// FromEnv builds the configuration from environment variables. A .env
// file in the working directory is loaded first when present.
func FromEnv() Config {
	_ = godotenv.Load()

	return Config{
		Server: Server{
			Addr: envOr("CIVICLEDGER_ADDR", ":8080"),
		},
		Ledger: Ledger{
			RPCURL:               os.Getenv("LEDGER_RPC_URL"),
			SignerKeyHex:         os.Getenv("LEDGER_SIGNER_KEY"),
			IdentityRegistryAddr: os.Getenv("IDENTITY_REGISTRY_ADDR"),
			ContentRegistryAddr:  os.Getenv("CONTENT_REGISTRY_ADDR"),
			Timeout:              envDuration("LEDGER_TIMEOUT", 30*time.Second),
		},
		Hashing: Hashing{
			Salt: os.Getenv("IDENTITY_SALT"),
		},
		DB: Database{
			URL:      os.Getenv("DATABASE_URL"),
			ForumURL: os.Getenv("FORUM_DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
			VerifyTTL:    envDuration("VERIFY_CACHE_TTL", 5*time.Minute),
		},
		Kafka: Kafka{
			Brokers: envList("KAFKA_BROKERS"),
			Topic:   envOr("KAFKA_AUDIT_TOPIC", "civicledger.audit"),
		},
	}
}

// Validate rejects configurations that would corrupt anchored state or
// silently run without the chain. The salt check is strict on purpose:
// an accidentally empty salt would fingerprint every identity under "".
func (c Config) Validate() error {
	if c.Hashing.Salt == "" {
		return fmt.Errorf("IDENTITY_SALT must be set; an empty salt would produce unprotected identity hashes")
	}
	if c.Ledger.RPCURL != "" {
		if c.Ledger.SignerKeyHex == "" {
			return fmt.Errorf("LEDGER_SIGNER_KEY must be set when LEDGER_RPC_URL is configured")
		}
		if c.Ledger.IdentityRegistryAddr == "" || c.Ledger.ContentRegistryAddr == "" {
			return fmt.Errorf("IDENTITY_REGISTRY_ADDR and CONTENT_REGISTRY_ADDR must be set when LEDGER_RPC_URL is configured")
		}
	}
	return nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
