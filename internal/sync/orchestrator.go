package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/FleetLinkSync/FleetLinkSync/internal/common/logger"
	"github.com/FleetLinkSync/FleetLinkSync/internal/fleet"
	"github.com/FleetLinkSync/FleetLinkSync/internal/telematics"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"gorm.io/gorm"
)

// Options 一次同步运行的入参。
type Options struct {
	SyncType    string // full / incremental / manual
	DaysToSync  int    // 回溯天数
	Concurrency int    // 按车并发的 worker 数
}

// Result 运行结果汇总。细粒度的单车失败只体现在日志里。
type Result struct {
	Success           bool
	EventsProcessed   int
	VehiclesProcessed int
}

// Orchestrator 同步编排器：驱动一次完整的"拉取-归因-评分-落库-汇总"流程。
// 依赖通过端口注入，便于在无数据库/无外网的环境下测试。
type Orchestrator struct {
	fetcher Fetcher
	repo    Repository
	log     logger.Logger
}

func NewOrchestrator(fetcher Fetcher, repo Repository, log logger.Logger) *Orchestrator {
	return &Orchestrator{fetcher: fetcher, repo: repo, log: log}
}

// Run 执行一次同步。
//
// 错误分层：
// - 致命（令牌/车辆清单/落库/汇总失败）：运行记录置 failed 并把错误返回给调用方
// - 可恢复（单车拉取失败）：告警后按空结果继续，不影响运行终态
// - 数据性（无生效分配）：事件按未归因落库，行为记录直接丢弃
//
// 所有写入都是幂等 upsert，致命失败后重跑同一窗口是安全的。
func (o *Orchestrator) Run(ctx context.Context, opts Options) (*Result, error) {
	if strings.TrimSpace(opts.SyncType) == "" {
		opts.SyncType = "incremental"
	}
	if opts.DaysToSync <= 0 {
		opts.DaysToSync = 7
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}

	now := time.Now().UTC()
	end := now
	start := now.AddDate(0, 0, -opts.DaysToSync)

	span := opentracing.GlobalTracer().StartSpan("fleet-sync.run")
	span.SetTag("sync.type", opts.SyncType)
	span.SetTag("sync.days", opts.DaysToSync)
	defer span.Finish()
	ctx = opentracing.ContextWithSpan(ctx, span)

	run := &fleet.SyncRun{
		ID:            uuid.NewString(),
		SyncType:      opts.SyncType,
		DaysRequested: opts.DaysToSync,
		Status:        fleet.RunStarted,
		StartedAt:     now,
	}
	if err := o.repo.CreateSyncRun(ctx, run); err != nil {
		return nil, fmt.Errorf("create sync run: %w", err)
	}
	log := o.log.WithField("run_id", run.ID)
	log.Infof("starting %s sync for last %d days", opts.SyncType, opts.DaysToSync)

	fail := func(err error) (*Result, error) {
		span.SetTag("error", true)
		run.ErrorMessage = err.Error()
		if trErr := fleet.ApplyRunTransition(run, fleet.RunFailed, time.Now().UTC()); trErr != nil {
			log.Errorf("cannot mark run failed: %v", trErr)
		} else if saveErr := o.repo.SaveSyncRun(ctx, run); saveErr != nil {
			log.Errorf("failed to persist failed run: %v", saveErr)
		}
		return nil, err
	}

	// 令牌获取一次，之后所有 worker 只读共享；失败直接终止
	if err := o.fetcher.Authenticate(ctx); err != nil {
		return fail(fmt.Errorf("authenticate: %w", err))
	}

	// 车辆清单失败同样致命：没有清单就没有任何可做的同步工作
	roster, err := o.fetcher.FetchVehicles(ctx)
	if err != nil {
		return fail(fmt.Errorf("fetch vehicle roster: %w", err))
	}
	log.Infof("found %d vehicles", len(roster))

	for i := range roster {
		pv := roster[i]
		v := &fleet.Vehicle{
			ID:           uuid.NewString(),
			VIN:          pv.VIN,
			ExternalID:   pv.VehicleID,
			Make:         pv.Make,
			Model:        pv.Model,
			Year:         pv.Year,
			LicensePlate: pv.LicensePlate,
		}
		if err := o.repo.UpsertVehicle(ctx, v); err != nil {
			return fail(fmt.Errorf("upsert vehicle vin=%s: %w", pv.VIN, err))
		}
	}

	// 按车并发处理：车辆间无共享可变状态，写入全部是幂等键控 upsert，
	// 并发上限只为尊重供应商限流
	type outcome struct {
		events int
		err    error
	}

	jobs := make(chan telematics.Vehicle)
	results := make(chan outcome, len(roster))

	var wg sync.WaitGroup
	for i := 0; i < opts.Concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for pv := range jobs {
				n, err := o.processVehicle(ctx, log, pv, start, end)
				results <- outcome{events: n, err: err}
			}
		}()
	}
	for _, pv := range roster {
		jobs <- pv
	}
	close(jobs)
	wg.Wait()
	close(results)

	total := 0
	var firstErr error
	for res := range results {
		total += res.events
		if res.err != nil && firstErr == nil {
			firstErr = res.err
		}
	}
	run.RecordsProcessed = total
	if firstErr != nil {
		return fail(firstErr)
	}

	// 汇总必须在所有单车写入完成后执行，它读取的是上面落库的结果
	rollupStart := truncateToDay(start)
	if err := o.repo.RecomputeDepartmentRollup(ctx, rollupStart, end); err != nil {
		return fail(fmt.Errorf("department rollup: %w", err))
	}

	if err := fleet.ApplyRunTransition(run, fleet.RunCompleted, time.Now().UTC()); err != nil {
		return fail(err)
	}
	if err := o.repo.SaveSyncRun(ctx, run); err != nil {
		return fail(fmt.Errorf("persist completed run: %w", err))
	}

	log.Infof("sync completed, processed %d events across %d vehicles", total, len(roster))
	return &Result{
		Success:           true,
		EventsProcessed:   total,
		VehiclesProcessed: len(roster),
	}, nil
}

// processVehicle 处理单车的事件与行为数据，返回处理的事件条数。
// 供应商侧拉取失败按"本窗口无记录"降级；存储失败向上抛（致命）。
func (o *Orchestrator) processVehicle(ctx context.Context, log logger.Logger, pv telematics.Vehicle, start, end time.Time) (int, error) {
	v, err := o.repo.FindVehicleByVIN(ctx, pv.VIN)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Warnf("vehicle %s not found in database, skipping", pv.VIN)
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("find vehicle vin=%s: %w", pv.VIN, err)
	}

	processed := 0

	events, err := o.fetcher.FetchSafetyEvents(ctx, pv.VehicleID, start, end)
	if err != nil {
		log.Warnf("fetch safety events failed, assuming none: %v", err)
		events = nil
	}
	for i := range events {
		if err := o.storeSafetyEvent(ctx, v, &events[i]); err != nil {
			return processed, err
		}
		processed++
	}

	behavior, err := o.fetcher.FetchDriverBehavior(ctx, pv.VehicleID, start, end)
	if err != nil {
		log.Warnf("fetch driver behavior failed, assuming none: %v", err)
		behavior = nil
	}
	for i := range behavior {
		if err := o.storeDailyScore(ctx, log, v, &behavior[i]); err != nil {
			return processed, err
		}
	}

	return processed, nil
}

// storeSafetyEvent 按事件时刻归因并落库。无归因时 EmployeeID 置 NULL 照常入库。
func (o *Orchestrator) storeSafetyEvent(ctx context.Context, v *fleet.Vehicle, ev *telematics.SafetyEvent) error {
	assignments, err := o.repo.ActiveAssignments(ctx, v.ID, ev.Timestamp)
	if err != nil {
		return fmt.Errorf("resolve assignment vehicle=%s: %w", v.VIN, err)
	}

	var employeeID *string
	if id, ok := PickAssignee(assignments); ok {
		employeeID = &id
	}

	// 入境校验已保证词表合法，这里的映射不会失败
	eventType, _ := telematics.InternalEventType(ev.EventType)
	severity, _ := telematics.InternalSeverity(ev.Severity)

	record := &fleet.SafetyEvent{
		ID:              uuid.NewString(),
		ProviderEventID: ev.EventID,
		VehicleID:       v.ID,
		EmployeeID:      employeeID,
		Time:            ev.Timestamp,
		EventType:       eventType,
		Severity:        severity,
		SpeedMPH:        ev.Speed,
		DurationSeconds: ev.Duration,
		Metadata:        marshalMetadata(ev.Metadata),
	}
	if ev.Location != nil {
		lat, lon := ev.Location.Latitude, ev.Location.Longitude
		record.LocationLat = &lat
		record.LocationLon = &lon
		if ev.Location.Address != "" {
			addr := ev.Location.Address
			record.LocationAddress = &addr
		}
	}

	if err := o.repo.InsertSafetyEvent(ctx, record); err != nil {
		return fmt.Errorf("insert safety event %s: %w", ev.EventID, err)
	}
	return nil
}

// storeDailyScore 按行为记录日期归因、算分并落库。
// 无归因的行为记录直接丢弃（不存），与事件的处理方式不同。
func (o *Orchestrator) storeDailyScore(ctx context.Context, log logger.Logger, v *fleet.Vehicle, b *telematics.DriverBehavior) error {
	date, err := b.ParseDate()
	if err != nil {
		return err
	}

	assignments, err := o.repo.ActiveAssignments(ctx, v.ID, date)
	if err != nil {
		return fmt.Errorf("resolve assignment vehicle=%s: %w", v.VIN, err)
	}
	employeeID, ok := PickAssignee(assignments)
	if !ok {
		log.Debugf("no assigned driver for vehicle %s on %s, dropping behavior row", v.VIN, b.Date)
		return nil
	}

	counters := BehaviorCounters{
		HarshBrake:  b.HarshBrakeCount,
		RapidAccel:  b.RapidAccelCount,
		Speeding:    b.SpeedingCount,
		SeatbeltOff: b.SeatbeltOffCount,
	}
	scores := ComputeScores(counters, b.OverallScore)

	record := &fleet.DailyDriverScore{
		ID:         uuid.NewString(),
		Date:       date,
		EmployeeID: employeeID,
		VehicleID:  v.ID,

		MilesDriven:      b.MilesDriven,
		TotalEvents:      counters.Total(),
		HarshBrakeCount:  b.HarshBrakeCount,
		RapidAccelCount:  b.RapidAccelCount,
		SpeedingCount:    b.SpeedingCount,
		SeatbeltOffCount: b.SeatbeltOffCount,

		BrakeScore:        scores.Brake,
		AccelerationScore: scores.Acceleration,
		SpeedScore:        scores.Speed,
		SeatbeltScore:     scores.Seatbelt,
		OverallScore:      scores.Overall,
	}
	if err := o.repo.UpsertDailyScore(ctx, record); err != nil {
		return fmt.Errorf("upsert daily score vehicle=%s date=%s: %w", v.VIN, b.Date, err)
	}
	return nil
}

func marshalMetadata(m map[string]interface{}) string {
	if len(m) == 0 {
		return "{}"
	}
	data, err := json.Marshal(m)
	if err != nil {
		return "{}"
	}
	return string(data)
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
