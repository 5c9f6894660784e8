package main

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/lib/pq"

	"civicledger/internal/audit"
	auditHandler "civicledger/internal/audit/handler"
	"civicledger/internal/content"
	contentHandler "civicledger/internal/content/handler"
	contentStore "civicledger/internal/content/store"
	"civicledger/internal/forum"
	"civicledger/internal/hashing"
	"civicledger/internal/identity"
	identityHandler "civicledger/internal/identity/handler"
	identityStore "civicledger/internal/identity/store"
	"civicledger/internal/ledger"
	"civicledger/internal/ledger/evm"
	"civicledger/internal/ledger/memory"
	"civicledger/internal/platform/config"
	"civicledger/internal/platform/httpserver"
	"civicledger/internal/platform/logger"
	"civicledger/internal/platform/metrics"
	platformredis "civicledger/internal/platform/redis"
	httptransport "civicledger/internal/transport/http"
)

// main wires high-level dependencies, exposes the HTTP router, and keeps
// the server lifecycle small. Business logic lives in the internal
// service packages.
func main() {
	cfg := config.FromEnv()
	log := logger.New()

	if err := cfg.Validate(); err != nil {
		log.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		log.Error("service exited with error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, log *slog.Logger) error {
	m := metrics.New()
	hasher := hashing.New(cfg.Hashing.Salt)

	backend, err := buildBackend(ctx, cfg.Ledger, log)
	if err != nil {
		return err
	}
	client := ledger.NewClient(backend, hasher, cfg.Ledger.Timeout, log)
	defer client.Close()

	pings := make(map[string]httptransport.Ping)

	var (
		idStore      identity.Store
		pointerStore content.PointerStore
		auditStore   audit.Store
	)
	if cfg.DB.URL != "" {
		pool, err := pgxpool.New(ctx, cfg.DB.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
		if _, err := pool.Exec(ctx, identityStore.Schema); err != nil {
			return err
		}
		if _, err := pool.Exec(ctx, contentStore.Schema); err != nil {
			return err
		}
		idStore = identityStore.NewPostgres(pool)
		pointerStore = contentStore.NewPostgres(pool)

		// The audit trail rides database/sql so its store stays usable
		// from plain SQL tooling.
		db, err := sql.Open("postgres", cfg.DB.URL)
		if err != nil {
			return err
		}
		defer db.Close()
		if _, err := db.ExecContext(ctx, audit.Schema); err != nil {
			return err
		}
		auditStore = audit.NewPostgresStore(db)
		pings["database"] = pool.Ping
		pings["audit_database"] = db.PingContext
	} else {
		log.Warn("DATABASE_URL not set; using in-memory stores (development only)")
		idStore = identityStore.NewMemory()
		pointerStore = contentStore.NewMemory()
		auditStore = audit.NewMemoryStore()
	}

	var (
		source   content.Source
		profiles identity.ProfileSource
	)
	if cfg.DB.ForumURL != "" {
		forumPool, err := pgxpool.New(ctx, cfg.DB.ForumURL)
		if err != nil {
			return err
		}
		defer forumPool.Close()
		src := forum.NewSource(forumPool)
		source, profiles = src, src
	} else {
		log.Warn("FORUM_DATABASE_URL not set; using in-memory forum source (development only)")
		src := forum.NewMemorySource()
		source, profiles = src, src
	}

	mirror, err := audit.NewMirror(cfg.Kafka.Brokers, cfg.Kafka.Topic, log)
	if err != nil {
		return err
	}
	if mirror != nil {
		defer mirror.Close()
	}
	publisher := audit.NewPublisher(auditStore, mirror, log)

	var cache *content.VerificationCache
	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Warn("redis unavailable; verification cache disabled", "error", err)
	} else if redisClient != nil {
		defer redisClient.Close()
		cache = content.NewVerificationCache(redisClient.Client, cfg.Redis.VerifyTTL, log)
		pings["redis"] = redisClient.Health
	}

	identityService := identity.NewService(idStore, profiles, client, publisher, m, log)
	contentService := content.NewService(pointerStore, source, identityService, client, cache, publisher, m, log)

	router := httptransport.NewRouter(log, client, pings,
		identityHandler.New(identityService, log),
		contentHandler.New(contentService, log),
		auditHandler.New(publisher, log),
	)
	srv := httpserver.New(cfg.Server.Addr, router)

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting civicledger", "addr", cfg.Server.Addr, "signer", backend.SignerAddress())
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Info("shutdown complete")
	return nil
}

// buildBackend selects the chain backend. An empty RPC URL selects the
// in-process registries, which is the development and test mode; it
// generates a throwaway signing key on each start.
func buildBackend(ctx context.Context, cfg config.Ledger, log *slog.Logger) (ledger.Backend, error) {
	if cfg.RPCURL == "" {
		log.Warn("LEDGER_RPC_URL not set; using in-process ledger (development only)")
		return memory.NewWithKey()
	}
	return evm.Dial(ctx, evm.Config{
		RPCURL:               cfg.RPCURL,
		SignerKeyHex:         cfg.SignerKeyHex,
		IdentityRegistryAddr: cfg.IdentityRegistryAddr,
		ContentRegistryAddr:  cfg.ContentRegistryAddr,
	})
}
