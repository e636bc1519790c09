package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	goredis "github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
	mongoopts "go.mongodb.org/mongo-driver/mongo/options"

	"ctshub/internal/adapter/searcher"
	"ctshub/internal/api"
	mongodb "ctshub/internal/db/mongo"
	"ctshub/internal/db/postgres"
	redisdb "ctshub/internal/db/redis"
	"ctshub/internal/domain/search"
	"ctshub/internal/platform/config"
	applog "ctshub/internal/platform/log"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "❌ Config load failed: %v\n", err)
		os.Exit(1)
	}

	applog.Init(applog.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	store := initStore(cfg)

	upstream := searcher.New(cfg.Searcher.URL, time.Duration(cfg.Searcher.TimeoutSeconds)*time.Second)
	orch := search.NewOrchestrator(store, upstream.Search)

	if cfg.Redis.URL != "" {
		if opt, err := goredis.ParseURL(cfg.Redis.URL); err == nil {
			orch.SetCache(redisdb.NewResultCache(goredis.NewClient(opt), cfg.Redis.CacheTTLSeconds))
			applog.Infof("✅ Result cache initialized (TTL: %ds)", cfg.Redis.CacheTTLSeconds)
		} else {
			applog.Warnf("⚠️  Redis URL invalid, result cache disabled: %v", err)
		}
	}

	serverConfig := api.DefaultServerConfig()
	serverConfig.Host = cfg.Server.Host
	serverConfig.Port = cfg.Server.Port
	serverConfig.ReadTimeout = time.Duration(cfg.Server.ReadTimeoutSeconds) * time.Second
	serverConfig.WriteTimeout = time.Duration(cfg.Server.WriteTimeoutSeconds) * time.Second
	serverConfig.UploadFiles = cfg.CTS.UploadFiles
	serverConfig.TempDir = cfg.CTS.TempDir
	serverConfig.MaxUploadMB = cfg.CTS.MaxUploadMB
	server := api.NewServer(serverConfig, orch)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		applog.Info("🔄 Shutting down...")
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()

		if err := server.Stop(ctx); err != nil {
			applog.Errorf("❌ Server shutdown error: %v", err)
		}
	}()

	if err := server.Start(); err != nil && err.Error() != "http: Server closed" {
		applog.Fatalf("❌ Server error: %v", err)
	}

	applog.Info("👋 Server stopped")
}

// initStore 按配置选择持久化后端。连接失败是致命错误：
// 存储不可达时 CTS 不应该提供服务。
func initStore(cfg *config.AppConfig) search.Store {
	switch cfg.Database.Driver {
	case "mongo":
		return initMongo(cfg)
	default:
		return initPostgres(cfg)
	}
}

func initPostgres(cfg *config.AppConfig) search.Store {
	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		applog.Fatalf("❌ Failed to open database: %v", err)
	}

	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(time.Duration(cfg.Database.ConnMaxLifetimeSeconds) * time.Second)

	if err := db.Ping(); err != nil {
		applog.Fatalf("❌ Failed to ping database: %v", err)
	}
	applog.Info("✅ Connected to PostgreSQL")

	store := postgres.NewStore(db, cfg.CTS.ID)

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := store.EnsureTables(ctx); err != nil {
		applog.Fatalf("❌ Failed to ensure CTS tables: %v", err)
	}
	applog.Infof("✅ CTS tables ready (%s_active_searches, %s_results)", cfg.CTS.ID, cfg.CTS.ID)

	return store
}

func initMongo(cfg *config.AppConfig) search.Store {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, mongoopts.Client().ApplyURI(cfg.Database.URL))
	if err != nil {
		applog.Fatalf("❌ Failed to connect to MongoDB: %v", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		applog.Fatalf("❌ Failed to ping MongoDB: %v", err)
	}
	applog.Info("✅ Connected to MongoDB")

	store := mongodb.NewStore(client.Database(cfg.CTS.ID), cfg.CTS.ID)

	if err := store.EnsureIndexes(ctx); err != nil {
		applog.Fatalf("❌ Failed to ensure CTS indexes: %v", err)
	}
	applog.Infof("✅ CTS collections ready (%s_active_searches, %s_results)", cfg.CTS.ID, cfg.CTS.ID)

	return store
}
