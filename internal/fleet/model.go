package fleet

import "time"

// Vehicle 车辆 GORM 模型。VIN 是自然键，ExternalID 是供应商侧车辆 ID。
type Vehicle struct {
	ID           string    `gorm:"primaryKey;size:36"`
	VIN          string    `gorm:"uniqueIndex;size:64;not null"`
	ExternalID   string    `gorm:"index;size:64;not null"`
	Make         string    `gorm:"size:64"`
	Model        string    `gorm:"size:64"`
	Year         int       `gorm:"not null;default:0"`
	LicensePlate string    `gorm:"size:32"`
	CreatedAt    time.Time `gorm:"autoCreateTime"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime"`
}

// Employee 员工表。本服务只读，不负责维护。
type Employee struct {
	ID             string    `gorm:"primaryKey;size:36"`
	EmployeeNumber string    `gorm:"uniqueIndex;size:32;not null"`
	Name           string    `gorm:"size:128"`
	DepartmentID   *string   `gorm:"index;size:36"` // 未分配部门时为 NULL，不参与部门汇总
	CreatedAt      time.Time `gorm:"autoCreateTime"`
	UpdatedAt      time.Time `gorm:"autoUpdateTime"`
}

// VehicleAssignment 车辆-员工的时间区间绑定 [assigned_date, unassigned_date)。
// unassigned_date 为 NULL 表示当前仍然生效。本服务只读该历史做归因。
type VehicleAssignment struct {
	ID              string     `gorm:"primaryKey;size:36"`
	VehicleID       string     `gorm:"index;size:36;not null"`
	EmployeeID      string     `gorm:"index;size:36;not null"`
	AssignedDate    time.Time  `gorm:"type:date;not null"`
	UnassignedDate  *time.Time `gorm:"type:date"`
	IsPrimaryDriver bool       `gorm:"not null;default:false"`
	CreatedAt       time.Time  `gorm:"autoCreateTime"`
}

// SafetyEvent 安全事件。ProviderEventID 是幂等键，事件一经写入不再更新。
// EmployeeID 为 NULL 表示事件发生时车辆无有效分配（未归因）。
type SafetyEvent struct {
	ID              string    `gorm:"primaryKey;size:36"`
	ProviderEventID string    `gorm:"uniqueIndex;size:64;not null"`
	VehicleID       string    `gorm:"index;size:36;not null"`
	EmployeeID      *string   `gorm:"index;size:36"`
	Time            time.Time `gorm:"index;not null"`
	EventType       string    `gorm:"size:32;not null"` // harsh_brake / rapid_accel / speeding / seatbelt_off / collision
	Severity        string    `gorm:"size:16;not null"` // low / medium / high / critical
	SpeedMPH        *float64
	LocationLat     *float64
	LocationLon     *float64
	LocationAddress *string   `gorm:"size:255"`
	DurationSeconds *float64
	Metadata        string    `gorm:"type:json"`
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

// DailyDriverScore 按 (date, employee, vehicle) 维度的日度驾驶评分。
// 与事件不同，评分允许被后续同步整体覆盖（last write wins）。
type DailyDriverScore struct {
	ID         string    `gorm:"primaryKey;size:36"`
	Date       time.Time `gorm:"type:date;not null;uniqueIndex:uidx_daily_score,priority:1"`
	EmployeeID string    `gorm:"size:36;not null;uniqueIndex:uidx_daily_score,priority:2"`
	VehicleID  string    `gorm:"size:36;not null;uniqueIndex:uidx_daily_score,priority:3"`

	MilesDriven      float64 `gorm:"not null;default:0"`
	TotalEvents      int     `gorm:"not null;default:0"`
	HarshBrakeCount  int     `gorm:"not null;default:0"`
	RapidAccelCount  int     `gorm:"not null;default:0"`
	SpeedingCount    int     `gorm:"not null;default:0"`
	SeatbeltOffCount int     `gorm:"not null;default:0"`

	BrakeScore        float64 `gorm:"not null;default:0"`
	AccelerationScore float64 `gorm:"not null;default:0"`
	SpeedScore        float64 `gorm:"not null;default:0"`
	SeatbeltScore     float64 `gorm:"not null;default:0"`
	OverallScore      float64 `gorm:"not null;default:0"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// DepartmentDailyScore 部门日度汇总，由 DailyDriverScore 聚合派生。
// 复合主键 (date, department_id)，重算时整行替换。
type DepartmentDailyScore struct {
	Date         time.Time `gorm:"type:date;primaryKey"`
	DepartmentID string    `gorm:"size:36;primaryKey"`

	ActiveDrivers int     `gorm:"not null;default:0"`
	TotalMiles    float64 `gorm:"not null;default:0"`

	AvgOverallScore      float64 `gorm:"not null;default:0"`
	AvgBrakeScore        float64 `gorm:"not null;default:0"`
	AvgAccelerationScore float64 `gorm:"not null;default:0"`
	AvgSpeedScore        float64 `gorm:"not null;default:0"`
	AvgSeatbeltScore     float64 `gorm:"not null;default:0"`

	HighRiskDrivers   int `gorm:"not null;default:0"` // overall < 70
	MediumRiskDrivers int `gorm:"not null;default:0"` // 70 <= overall < 85
	LowRiskDrivers    int `gorm:"not null;default:0"` // overall >= 85

	UpdatedAt time.Time `gorm:"autoUpdateTime"`
}

// AllModels AutoMigrate 用的模型清单
func AllModels() []interface{} {
	return []interface{}{
		&Vehicle{},
		&Employee{},
		&VehicleAssignment{},
		&SafetyEvent{},
		&DailyDriverScore{},
		&DepartmentDailyScore{},
		&SyncRun{},
	}
}
