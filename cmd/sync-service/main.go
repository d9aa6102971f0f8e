package main

import (
	"context"
	"flag"
	"fmt"
	"time"

	"github.com/FleetLinkSync/FleetLinkSync/internal/common/config"
	"github.com/FleetLinkSync/FleetLinkSync/internal/common/db"
	"github.com/FleetLinkSync/FleetLinkSync/internal/common/logger"
	"github.com/FleetLinkSync/FleetLinkSync/internal/common/server"
	"github.com/FleetLinkSync/FleetLinkSync/internal/common/tracing"
	"github.com/FleetLinkSync/FleetLinkSync/internal/fleet"
	fleetsync "github.com/FleetLinkSync/FleetLinkSync/internal/sync"
	"github.com/FleetLinkSync/FleetLinkSync/internal/telematics"
)

var (
	configPath = flag.String("config", "configs/sync-service.json", "配置文件路径")
	consulKey  = flag.String("consul-kv", "", "可选：从 Consul KV 读取配置的 key")
)

func main() {
	flag.Parse()

	// 加载配置（优先 Consul KV，其次本地文件）
	var cfg *config.Config
	var err error
	if *consulKey != "" {
		base := config.GetConfig()
		cfg, err = config.LoadConfigFromConsulKV(base.Consul.Host, base.Consul.Port, *consulKey)
	} else {
		cfg, err = config.LoadConfig(*configPath)
	}
	if err != nil {
		panic(fmt.Sprintf("failed to load config: %v", err))
	}

	// 初始化日志
	log, err := logger.NewLogger(cfg.Log.Level, cfg.Log.Format, cfg.Log.Output, cfg.Log.Path)
	if err != nil {
		panic(fmt.Sprintf("failed to init logger: %v", err))
	}

	// 初始化链路追踪
	_, closer, err := tracing.InitTracer(
		cfg.Server.Name,
		cfg.Jaeger.Endpoint,
		cfg.Jaeger.Sampler,
	)
	if err != nil {
		log.Warnf("failed to init tracer: %v", err)
	} else {
		defer closer.Close()
	}

	// 初始化数据库
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

	orch := fleetsync.NewOrchestrator(
		telematics.NewClient(cfg.Provider, log),
		fleet.NewRepo(gormDB),
		log,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go runScheduler(ctx, orch, cfg.Sync, log)

	// gRPC 只承载健康检查与 reflection，供 Consul 探活
	if err := server.RunGRPCServer(cfg, log, nil); err != nil {
		log.Fatalf("sync-service exited with error: %v", err)
	}
}

// runScheduler 启动即跑一轮增量同步，之后按配置间隔周期执行。
// 单轮失败只记录日志，运行记录本身就是审计痕迹，等下一轮重试。
func runScheduler(ctx context.Context, orch *fleetsync.Orchestrator, cfg config.SyncConfig, log logger.Logger) {
	runOnce := func() {
		res, err := orch.Run(ctx, fleetsync.Options{
			SyncType:    "incremental",
			DaysToSync:  cfg.DaysToSync,
			Concurrency: cfg.Concurrency,
		})
		if err != nil {
			log.Errorf("scheduled sync failed: %v", err)
			return
		}
		log.Infof("scheduled sync done: %d events, %d vehicles", res.EventsProcessed, res.VehiclesProcessed)
	}

	runOnce()

	if cfg.IntervalMinutes <= 0 {
		return
	}
	ticker := time.NewTicker(time.Duration(cfg.IntervalMinutes) * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			runOnce()
		}
	}
}
