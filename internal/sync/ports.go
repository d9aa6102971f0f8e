package sync

import (
	"context"
	"time"

	"github.com/FleetLinkSync/FleetLinkSync/internal/fleet"
	"github.com/FleetLinkSync/FleetLinkSync/internal/telematics"
)

// Fetcher 供应商数据获取端口，telematics.Client 是生产实现。
type Fetcher interface {
	Authenticate(ctx context.Context) error
	FetchVehicles(ctx context.Context) ([]telematics.Vehicle, error)
	FetchSafetyEvents(ctx context.Context, externalVehicleID string, start, end time.Time) ([]telematics.SafetyEvent, error)
	FetchDriverBehavior(ctx context.Context, externalVehicleID string, start, end time.Time) ([]telematics.DriverBehavior, error)
}

// Repository 持久化端口，fleet.Repo 是生产实现。
// 所有写操作必须幂等（见 fleet.Repo 的约定）。
type Repository interface {
	UpsertVehicle(ctx context.Context, v *fleet.Vehicle) error
	FindVehicleByVIN(ctx context.Context, vin string) (*fleet.Vehicle, error)
	ActiveAssignments(ctx context.Context, vehicleID string, at time.Time) ([]fleet.VehicleAssignment, error)
	InsertSafetyEvent(ctx context.Context, e *fleet.SafetyEvent) error
	UpsertDailyScore(ctx context.Context, s *fleet.DailyDriverScore) error
	RecomputeDepartmentRollup(ctx context.Context, start, end time.Time) error
	CreateSyncRun(ctx context.Context, run *fleet.SyncRun) error
	SaveSyncRun(ctx context.Context, run *fleet.SyncRun) error
}
