package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/FleetLinkSync/FleetLinkSync/internal/common/config"
	"github.com/FleetLinkSync/FleetLinkSync/internal/common/db"
	"github.com/FleetLinkSync/FleetLinkSync/internal/common/logger"
	"github.com/FleetLinkSync/FleetLinkSync/internal/common/tracing"
	"github.com/FleetLinkSync/FleetLinkSync/internal/fleet"
	fleetsync "github.com/FleetLinkSync/FleetLinkSync/internal/sync"
	"github.com/FleetLinkSync/FleetLinkSync/internal/telematics"
)

var (
	configPath = flag.String("config", "configs/sync-service.json", "配置文件路径")
	syncType   = flag.String("type", "manual", "同步类型：full / incremental / manual")
	days       = flag.Int("days", 0, "回溯天数（0 表示用配置默认值）")
)

// sync-once 手工触发一次同步后退出，退出码反映是否有致命失败。
func main() {
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	_, closer, err := tracing.InitTracer(cfg.Server.Name, cfg.Jaeger.Endpoint, cfg.Jaeger.Sampler)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}

	gormDB, err := db.NewMySQL(
		cfg.Database.Host,
		cfg.Database.Port,
		cfg.Database.User,
		cfg.Database.Password,
		cfg.Database.Database,
		cfg.Database.MaxIdle,
		cfg.Database.MaxOpen,
	)
	if err != nil {
		log.Fatalf("failed to init mysql: %v", err)
	}
	if err := gormDB.AutoMigrate(fleet.AllModels()...); err != nil {
		log.Fatalf("failed to migrate mysql schema: %v", err)
	}

	daysToSync := *days
	if daysToSync <= 0 {
		daysToSync = cfg.Sync.DaysToSync
	}

	orch := fleetsync.NewOrchestrator(
		telematics.NewClient(cfg.Provider, log),
		fleet.NewRepo(gormDB),
		log,
	)
	res, err := orch.Run(context.Background(), fleetsync.Options{
		SyncType:    *syncType,
		DaysToSync:  daysToSync,
		Concurrency: cfg.Sync.Concurrency,
	})
	if err != nil {
		log.Errorf("sync failed: %v", err)
		os.Exit(1)
	}

	log.Infof("sync completed: %d events, %d vehicles", res.EventsProcessed, res.VehiclesProcessed)
}
