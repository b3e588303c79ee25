package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/admin"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/api"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/cache"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/config"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/connections"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/database"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/identity"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/match"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/meeting"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/metrics"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/migrations"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/redis"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/store"
	"github.com/flyingdarts/flyingdarts-turbo-sub000/internal/ws"
)

// players resolves identities and records live connections for the socket route
type players struct {
	*identity.Resolver
	*connections.Registry
}

func main() {
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(ctx, cfg.DatabaseURL, 10*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if cfg.MigrateOnStart {
		log.Println("[MIGRATE] Running DB migrations on startup...")
		if err := migrations.RunMigrations(cfg.DatabaseURL, os.Getenv("MIGRATIONS_DIR")); err != nil {
			log.Fatalf("Failed to run migrations: %v", err)
		}
	}

	rdb, err := redis.Connect(ctx, cfg.RedisURL, 5*time.Second)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	records := store.NewPostgres(db)
	snapshots := cache.New(store.NewRedis(rdb, cfg.AggregateTTL(), cfg.Optimistic()), records)
	resolver := identity.NewResolver(records)
	registry := connections.NewRegistry(records, rdb, cfg.AggregateTTL())

	hub := ws.NewHub()
	hub.OnClose(func(c *ws.Client) {
		registry.Forget(context.Background(), c.ID())
		m.Connections(hub.Count())
	})
	go hub.Run(ctx)

	var pusher match.Pusher = hub
	if cfg.WSRelayEnabled {
		relay := ws.NewRelay(hub, rdb, registry)
		relay.Start(ctx)
		pusher = relay
		log.Printf("[WS] cross-instance relay enabled")
	}

	svc := match.NewService(match.Deps{
		Identities:  resolver,
		Connections: registry,
		Meetings:    meeting.NewClient(cfg),
		Records:     records,
		Snapshots:   snapshots,
		Pusher:      pusher,
		Metrics:     m,
	}, match.Options{
		RequiredPlayers: cfg.RequiredPlayers,
		StartingScore:   cfg.DefaultStartingScore,
		Optimistic:      cfg.Optimistic(),
		MaxRetries:      cfg.AggregateMaxRetries,
		PushTimeout:     cfg.PushTimeout(),
	})
	log.Printf("[CONFIG] players=%d start=%d write_mode=%s retries=%d",
		cfg.RequiredPlayers, cfg.DefaultStartingScore, cfg.AggregateWriteMode, cfg.AggregateMaxRetries)

	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.Default()
	api.SetupRoutes(router, api.Deps{
		Matches:    svc,
		Hub:        connectionGauge{hub, m},
		Players:    players{resolver, registry},
		Admins:     admin.NewAccounts(db),
		Aggregates: snapshots,
		Gatherer:   reg,
	}, cfg)

	srv := &http.Server{Addr: ":" + cfg.Port, Handler: router}
	go func() {
		log.Printf("Starting Flyingdarts X01 server on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	<-ctx.Done()
	log.Println("Shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Printf("Graceful shutdown failed: %v", err)
	}
}

// connectionGauge updates the open connection gauge whenever a socket is served
type connectionGauge struct {
	*ws.Hub
	m *metrics.Metrics
}

func (g connectionGauge) Serve(w http.ResponseWriter, r *http.Request, ident string, onOpen func(c *ws.Client), handle ws.Handler) {
	g.Hub.Serve(w, r, ident, func(c *ws.Client) {
		g.m.Connections(g.Hub.Count())
		if onOpen != nil {
			onOpen(c)
		}
	}, handle)
}
