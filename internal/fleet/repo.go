package fleet

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Repo 车队数据的持久化层。所有写操作都是幂等的：
// 同样的输入重复执行不会产生可观察的差异，这是同步可安全重跑的基础。
type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) withCtx(ctx context.Context) *gorm.DB {
	if r == nil || r.db == nil {
		return nil
	}
	return r.db.WithContext(ctx)
}

// UpsertVehicle 以 VIN 为键插入或更新，可变字段总是被覆盖。
func (r *Repo) UpsertVehicle(ctx context.Context, v *Vehicle) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "vin"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"external_id", "make", "model", "year", "license_plate", "updated_at",
		}),
	}).Create(v).Error
}

// FindVehicleByVIN 按 VIN 查询内部车辆记录。
func (r *Repo) FindVehicleByVIN(ctx context.Context, vin string) (*Vehicle, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var v Vehicle
	if err := db.Where("vin = ?", vin).First(&v).Error; err != nil {
		return nil, err
	}
	return &v, nil
}

// ActiveAssignments 返回某车辆在 at 时点生效的全部分配记录：
// assigned_date <= at 且（未解绑 或 unassigned_date > at）。
// 从中选谁负责由上层的归因规则决定。
func (r *Repo) ActiveAssignments(ctx context.Context, vehicleID string, at time.Time) ([]VehicleAssignment, error) {
	db := r.withCtx(ctx)
	if db == nil {
		return nil, fmt.Errorf("repo db is nil")
	}
	var assignments []VehicleAssignment
	err := db.
		Where("vehicle_id = ?", vehicleID).
		Where("assigned_date <= ?", at).
		Where("unassigned_date IS NULL OR unassigned_date > ?", at).
		Find(&assignments).Error
	if err != nil {
		return nil, err
	}
	return assignments, nil
}

// InsertSafetyEvent 以供应商事件 ID 为幂等键插入。
// 事件是不可变事实：冲突即静默跳过，首写生效。
func (r *Repo) InsertSafetyEvent(ctx context.Context, e *SafetyEvent) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "provider_event_id"}},
		DoNothing: true,
	}).Create(e).Error
}

// UpsertDailyScore 以 (date, employee_id, vehicle_id) 为键插入或更新，
// 派生字段整体覆盖（last write wins）。
func (r *Repo) UpsertDailyScore(ctx context.Context, s *DailyDriverScore) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Clauses(clause.OnConflict{
		Columns: []clause.Column{
			{Name: "date"}, {Name: "employee_id"}, {Name: "vehicle_id"},
		},
		DoUpdates: clause.AssignmentColumns([]string{
			"miles_driven", "total_events",
			"harsh_brake_count", "rapid_accel_count", "speeding_count", "seatbelt_off_count",
			"brake_score", "acceleration_score", "speed_score", "seatbelt_score", "overall_score",
			"updated_at",
		}),
	}).Create(s).Error
}

// RecomputeDepartmentRollup 在 [start, end) 窗口内重算部门日度汇总。
// 单条聚合 SQL 完成分组统计，已有行整体替换，跨窗口重跑安全。
func (r *Repo) RecomputeDepartmentRollup(ctx context.Context, start, end time.Time) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Exec(`
		INSERT INTO department_daily_scores
			(date, department_id, active_drivers, total_miles,
			 avg_overall_score, avg_brake_score, avg_acceleration_score,
			 avg_speed_score, avg_seatbelt_score,
			 high_risk_drivers, medium_risk_drivers, low_risk_drivers, updated_at)
		SELECT
			dds.date,
			e.department_id,
			COUNT(DISTINCT dds.employee_id),
			SUM(dds.miles_driven),
			AVG(dds.overall_score),
			AVG(dds.brake_score),
			AVG(dds.acceleration_score),
			AVG(dds.speed_score),
			AVG(dds.seatbelt_score),
			SUM(CASE WHEN dds.overall_score < 70 THEN 1 ELSE 0 END),
			SUM(CASE WHEN dds.overall_score >= 70 AND dds.overall_score < 85 THEN 1 ELSE 0 END),
			SUM(CASE WHEN dds.overall_score >= 85 THEN 1 ELSE 0 END),
			NOW()
		FROM daily_driver_scores dds
		JOIN employees e ON dds.employee_id = e.id
		WHERE dds.date >= ? AND dds.date < ?
		  AND e.department_id IS NOT NULL
		GROUP BY dds.date, e.department_id
		ON DUPLICATE KEY UPDATE
			active_drivers = VALUES(active_drivers),
			total_miles = VALUES(total_miles),
			avg_overall_score = VALUES(avg_overall_score),
			avg_brake_score = VALUES(avg_brake_score),
			avg_acceleration_score = VALUES(avg_acceleration_score),
			avg_speed_score = VALUES(avg_speed_score),
			avg_seatbelt_score = VALUES(avg_seatbelt_score),
			high_risk_drivers = VALUES(high_risk_drivers),
			medium_risk_drivers = VALUES(medium_risk_drivers),
			low_risk_drivers = VALUES(low_risk_drivers),
			updated_at = VALUES(updated_at)
	`, start, end).Error
}

// CreateSyncRun 写入一条新的运行记录（状态 started）。
func (r *Repo) CreateSyncRun(ctx context.Context, run *SyncRun) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Create(run).Error
}

// SaveSyncRun 保存运行记录的终态。
func (r *Repo) SaveSyncRun(ctx context.Context, run *SyncRun) error {
	db := r.withCtx(ctx)
	if db == nil {
		return fmt.Errorf("repo db is nil")
	}
	return db.Save(run).Error
}
