package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nidhogg/curia/internal/agent"
	"github.com/nidhogg/curia/internal/api"
	"github.com/nidhogg/curia/internal/config"
	"github.com/nidhogg/curia/internal/event"
	"github.com/nidhogg/curia/internal/gateway"
	"github.com/nidhogg/curia/internal/market"
	"github.com/nidhogg/curia/internal/memory"
	"github.com/nidhogg/curia/internal/persist"
	"github.com/nidhogg/curia/internal/relation"
	"github.com/nidhogg/curia/internal/scenario"
	"github.com/nidhogg/curia/internal/senate"
	"github.com/nidhogg/curia/internal/world"
)

// persister is the combined snapshot surface every backend implements.
type persister interface {
	memory.Persister
	relation.Persister
}

func newLogger(level string) *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	if lvl, err := zapcore.ParseLevel(level); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	logger, _ := cfg.Build()
	return logger
}

// openBackend builds the configured snapshot backend. External backends
// degrade to the JSON store with a warning so the world still runs.
func openBackend(cfg config.PersistenceConfig, logger *zap.Logger) (persister, func()) {
	switch cfg.Backend {
	case "sqlite":
		s, err := persist.NewSQLiteStore(cfg.SQLite.Path, logger)
		if err == nil {
			return s, func() { s.Close() }
		}
		logger.Warn("sqlite unavailable, falling back to json", zap.Error(err))
	case "redis":
		s, err := persist.NewRedisStore(cfg.Redis.URL, logger)
		if err == nil {
			return s, func() { s.Close() }
		}
		logger.Warn("redis unavailable, falling back to json", zap.Error(err))
	case "postgres":
		s, err := persist.NewPostgresStore(cfg.Postgres.DSN, logger)
		if err == nil {
			return s, func() { s.Close() }
		}
		logger.Warn("postgres unavailable, falling back to json", zap.Error(err))
	case "neo4j":
		s, err := persist.NewNeo4jStore(cfg.Neo4j.URI, cfg.Neo4j.User, cfg.Neo4j.Password, logger)
		if err == nil {
			return s, func() { s.Close(context.Background()) }
		}
		logger.Warn("neo4j unavailable, falling back to json", zap.Error(err))
	}

	s, err := persist.NewJSONStore(cfg.JSONDir, logger)
	if err != nil {
		logger.Fatal("json store unavailable", zap.Error(err))
	}
	return s, func() {}
}

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/curia.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		logger := newLogger("info")
		logger.Fatal("failed to load config", zap.String("path", cfgPath), zap.Error(err))
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("Starting Curia", zap.String("config", cfgPath))

	store, closeStore := openBackend(cfg.Persistence, logger)
	defer closeStore()

	// Event bus
	var bus *event.Bus
	if cfg.Bus.Async {
		bus = event.NewBusWithOptions(event.Options{
			Async:     true,
			QueueSize: cfg.Bus.QueueSize,
			BatchSize: cfg.Bus.BatchSize,
		}, logger)
	} else {
		bus = event.NewBus(logger)
	}

	// Relationship graph
	relations := relation.NewManager(logger)
	if err := relations.Load(context.Background(), store); err != nil {
		logger.Warn("no prior relationship snapshot", zap.Error(err))
	}
	relations.BindBus(bus)

	// World trackers
	activity := world.NewActivityTracker(time.Minute, logger)
	activity.Bind(bus)
	growth := world.NewGrowthTracker(logger)
	growth.Bind(bus)

	// Agent roster from the scenario
	factory := agent.NewFactory(logger)
	if err := senate.RegisterTypes(factory); err != nil {
		logger.Fatal("register senate types", zap.Error(err))
	}
	if err := market.RegisterTypes(factory); err != nil {
		logger.Fatal("register market types", zap.Error(err))
	}

	agents := agent.NewManager(bus, logger)

	scnPath := cfg.ScenarioPath
	if scnPath == "" {
		scnPath = "configs/senate.yaml"
	}
	scn, err := scenario.Load(scnPath)
	if err != nil {
		logger.Fatal("failed to load scenario", zap.String("path", scnPath), zap.Error(err))
	}
	if err := scn.Apply(factory, agents, relations, bus, logger); err != nil {
		logger.Fatal("failed to apply scenario", zap.Error(err))
	}

	// Political edges regress toward neutral over time.
	normalizer := senate.NewPoliticalNormalizer()
	for _, r := range relations.ByType(relation.TypePolitical) {
		r.SetNormalizer(normalizer)
	}

	// Attach persistence to every agent memory store.
	for _, a := range agents.List() {
		if mh, ok := a.(interface{ MemoryStore() *memory.Store }); ok {
			mh.MemoryStore().SetPersister(context.Background(), store)
		}
	}

	// Simulation loop
	sim := world.NewSimulation(agents, bus, relations, world.Options{
		RelationDecayPerDay: cfg.World.RelationDecayPerDay,
		DecayEveryTicks:     cfg.World.DecayEveryTicks,
		PruneThreshold:      cfg.World.PruneThreshold,
		PruneEveryTicks:     cfg.World.PruneEveryTicks,
	}, logger)
	clock := world.NewClock(time.Duration(cfg.World.TickSeconds)*time.Second, cfg.World.Speed, logger)
	clock.AddListener(sim)
	clock.Start()
	logger.Info("World simulation started")

	// Scheduled maintenance
	scheduler := cron.New()
	if spec := cfg.Maintenance.SnapshotCron; spec != "" {
		if _, err := scheduler.AddFunc(spec, func() {
			if err := relations.Save(context.Background(), store); err != nil {
				logger.Warn("relationship snapshot failed", zap.Error(err))
			}
		}); err != nil {
			logger.Warn("bad snapshot cron spec", zap.String("spec", spec), zap.Error(err))
		}
	}
	if spec := cfg.Maintenance.BackupCron; spec != "" {
		if _, err := scheduler.AddFunc(spec, func() {
			for _, a := range agents.List() {
				if err := store.BackupMemories(context.Background(), a.ID()); err != nil {
					logger.Warn("memory backup failed", zap.String("agent", a.ID()), zap.Error(err))
				}
			}
		}); err != nil {
			logger.Warn("bad backup cron spec", zap.String("spec", spec), zap.Error(err))
		}
	}
	scheduler.Start()

	// Chat relay
	var relay *gateway.Relay
	if cfg.Gateway.Discord.Enabled || cfg.Gateway.Slack.Enabled {
		relay = gateway.NewRelay(cfg.Gateway.Kinds, logger)
		if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
			relay.Register(gateway.NewDiscordAdapter(cfg.Gateway.Discord.BotToken, cfg.Gateway.Discord.ChannelID, logger))
		}
		if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
			relay.Register(gateway.NewSlackAdapter(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.Channel, logger))
		}
		if err := relay.Start(context.Background()); err != nil {
			logger.Warn("gateway relay disabled", zap.Error(err))
			relay = nil
		} else {
			relay.Bind(bus)
		}
	}

	// Inspection API
	handler := api.NewHandler(scn.Name, agents, relations, bus, clock, sim, activity, growth, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}
	go func() {
		logger.Info("Curia listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down Curia...")
	clock.Stop()
	scheduler.Stop()
	srv.Shutdown(context.Background())
	if relay != nil {
		relay.Stop()
	}
	bus.Stop()
	if err := relations.Save(context.Background(), store); err != nil {
		logger.Warn("final relationship snapshot failed", zap.Error(err))
	}
}
