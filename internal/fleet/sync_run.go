package fleet

import (
	"fmt"
	"time"
)

// RunStatus 同步运行状态枚举（持久化为字符串）。
type RunStatus string

const (
	RunStarted   RunStatus = "started"   // 运行中
	RunCompleted RunStatus = "completed" // 正常结束
	RunFailed    RunStatus = "failed"    // 致命错误终止
)

// SyncRun 一次同步运行的审计记录。
type SyncRun struct {
	ID               string    `gorm:"primaryKey;size:36"`
	SyncType         string    `gorm:"size:16;not null"` // full / incremental / manual
	DaysRequested    int       `gorm:"not null;default:0"`
	Status           RunStatus `gorm:"type:varchar(16);index;not null"`
	RecordsProcessed int       `gorm:"not null;default:0"`
	ErrorMessage     string    `gorm:"size:1024"`
	StartedAt        time.Time `gorm:"not null"`
	CompletedAt      *time.Time
}

// TableName 沿用既有的 sync_log 表名
func (SyncRun) TableName() string {
	return "sync_log"
}

// allowRunTransition 运行状态机：started 只能走向 completed 或 failed，
// 终态不允许再流转（一个 run id 只被消费一次）。
var allowRunTransition = map[RunStatus][]RunStatus{
	RunStarted:   {RunCompleted, RunFailed},
	RunCompleted: {},
	RunFailed:    {},
}

// CanTransitionRun 判断 from -> to 是否是允许的状态流转。
func CanTransitionRun(from, to RunStatus) bool {
	for _, s := range allowRunTransition[from] {
		if s == to {
			return true
		}
	}
	return false
}

// ApplyRunTransition 对运行记录应用状态变更，并维护结束时间。
func ApplyRunTransition(run *SyncRun, to RunStatus, now time.Time) error {
	if run == nil {
		return fmt.Errorf("sync run is nil")
	}
	from := run.Status
	if !CanTransitionRun(from, to) {
		return fmt.Errorf("invalid sync run status transition: %s -> %s", from, to)
	}

	run.Status = to

	switch to {
	case RunCompleted, RunFailed:
		if run.CompletedAt == nil {
			t := now
			run.CompletedAt = &t
		}
	}
	return nil
}
