package sync

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/FleetLinkSync/FleetLinkSync/internal/common/logger"
	"github.com/FleetLinkSync/FleetLinkSync/internal/fleet"
	"github.com/FleetLinkSync/FleetLinkSync/internal/telematics"
	"gorm.io/gorm"
)

// nopLogger 测试用空实现
type nopLogger struct{}

func (nopLogger) Debugf(string, ...interface{}) {}
func (nopLogger) Infof(string, ...interface{})  {}
func (nopLogger) Warnf(string, ...interface{})  {}
func (nopLogger) Errorf(string, ...interface{}) {}
func (nopLogger) Fatalf(string, ...interface{}) {}
func (nopLogger) Info(...interface{})           {}
func (nopLogger) Warn(...interface{})           {}
func (nopLogger) Error(...interface{})          {}

func (l nopLogger) WithField(string, interface{}) logger.Logger { return l }
func (l nopLogger) WithFields(map[string]interface{}) logger.Logger {
	return l
}

// fakeFetcher 可编排的数据源
type fakeFetcher struct {
	authErr   error
	rosterErr error
	vehicles  []telematics.Vehicle
	events    map[string][]telematics.SafetyEvent   // keyed by external vehicle id
	eventsErr map[string]error
	behavior  map[string][]telematics.DriverBehavior
}

func (f *fakeFetcher) Authenticate(ctx context.Context) error { return f.authErr }

func (f *fakeFetcher) FetchVehicles(ctx context.Context) ([]telematics.Vehicle, error) {
	if f.rosterErr != nil {
		return nil, f.rosterErr
	}
	return f.vehicles, nil
}

func (f *fakeFetcher) FetchSafetyEvents(ctx context.Context, id string, start, end time.Time) ([]telematics.SafetyEvent, error) {
	if err := f.eventsErr[id]; err != nil {
		return nil, err
	}
	return f.events[id], nil
}

func (f *fakeFetcher) FetchDriverBehavior(ctx context.Context, id string, start, end time.Time) ([]telematics.DriverBehavior, error) {
	return f.behavior[id], nil
}

// fakeRepo 内存版持久化，保持与 fleet.Repo 相同的幂等语义
type fakeRepo struct {
	mu               sync.Mutex
	vehiclesByVIN    map[string]*fleet.Vehicle
	vehiclesByID     map[string]*fleet.Vehicle
	assignmentsByVIN map[string][]fleet.VehicleAssignment
	events           map[string]*fleet.SafetyEvent      // provider event id -> row
	scores           map[string]*fleet.DailyDriverScore // date|employee|vehicle -> row
	runs             map[string]*fleet.SyncRun
	rollupCalls      int
}

func newFakeRepo() *fakeRepo {
	return &fakeRepo{
		vehiclesByVIN:    make(map[string]*fleet.Vehicle),
		vehiclesByID:     make(map[string]*fleet.Vehicle),
		assignmentsByVIN: make(map[string][]fleet.VehicleAssignment),
		events:           make(map[string]*fleet.SafetyEvent),
		scores:           make(map[string]*fleet.DailyDriverScore),
		runs:             make(map[string]*fleet.SyncRun),
	}
}

func (r *fakeRepo) UpsertVehicle(ctx context.Context, v *fleet.Vehicle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.vehiclesByVIN[v.VIN]; ok {
		existing.ExternalID = v.ExternalID
		existing.Make = v.Make
		existing.Model = v.Model
		existing.Year = v.Year
		existing.LicensePlate = v.LicensePlate
		return nil
	}
	cp := *v
	r.vehiclesByVIN[v.VIN] = &cp
	r.vehiclesByID[v.ID] = &cp
	return nil
}

func (r *fakeRepo) FindVehicleByVIN(ctx context.Context, vin string) (*fleet.Vehicle, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehiclesByVIN[vin]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *v
	return &cp, nil
}

func (r *fakeRepo) ActiveAssignments(ctx context.Context, vehicleID string, at time.Time) ([]fleet.VehicleAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	v, ok := r.vehiclesByID[vehicleID]
	if !ok {
		return nil, nil
	}
	var active []fleet.VehicleAssignment
	for _, a := range r.assignmentsByVIN[v.VIN] {
		if a.AssignedDate.After(at) {
			continue
		}
		if a.UnassignedDate != nil && !a.UnassignedDate.After(at) {
			continue
		}
		active = append(active, a)
	}
	return active, nil
}

func (r *fakeRepo) InsertSafetyEvent(ctx context.Context, e *fleet.SafetyEvent) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.events[e.ProviderEventID]; ok {
		return nil // 冲突静默跳过
	}
	cp := *e
	r.events[e.ProviderEventID] = &cp
	return nil
}

func (r *fakeRepo) UpsertDailyScore(ctx context.Context, s *fleet.DailyDriverScore) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s", s.Date.Format("2006-01-02"), s.EmployeeID, s.VehicleID)
	cp := *s
	r.scores[key] = &cp
	return nil
}

func (r *fakeRepo) RecomputeDepartmentRollup(ctx context.Context, start, end time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rollupCalls++
	return nil
}

func (r *fakeRepo) CreateSyncRun(ctx context.Context, run *fleet.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *fakeRepo) SaveSyncRun(ctx context.Context, run *fleet.SyncRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *run
	r.runs[run.ID] = &cp
	return nil
}

func (r *fakeRepo) singleRun(t *testing.T) *fleet.SyncRun {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.runs) != 1 {
		t.Fatalf("expected exactly 1 sync run, got %d", len(r.runs))
	}
	for _, run := range r.runs {
		return run
	}
	return nil
}

func providerVehicle(n int) telematics.Vehicle {
	return telematics.Vehicle{
		VehicleID: fmt.Sprintf("ext-%d", n),
		VIN:       fmt.Sprintf("VIN%04d", n),
		Make:      "Ford",
		Model:     "Transit",
		Year:      2023,
	}
}

func providerEvent(id, vehicleID string, at time.Time) telematics.SafetyEvent {
	return telematics.SafetyEvent{
		EventID:   id,
		VehicleID: vehicleID,
		Timestamp: at,
		EventType: "HARSH_BRAKE",
		Severity:  "HIGH",
	}
}

func TestRunProcessesEventsAndScores(t *testing.T) {
	at := time.Now().UTC().Add(-24 * time.Hour)
	day := at.Format("2006-01-02")

	fetcher := &fakeFetcher{
		vehicles: []telematics.Vehicle{providerVehicle(1)},
		events: map[string][]telematics.SafetyEvent{
			"ext-1": {providerEvent("ev-1", "ext-1", at), providerEvent("ev-2", "ext-1", at)},
		},
		behavior: map[string][]telematics.DriverBehavior{
			"ext-1": {{Date: day, MilesDriven: 120, HarshBrakeCount: 3, SpeedingCount: 1}},
		},
	}
	repo := newFakeRepo()
	repo.assignmentsByVIN["VIN0001"] = []fleet.VehicleAssignment{
		{EmployeeID: "emp-1", AssignedDate: at.AddDate(0, -1, 0), IsPrimaryDriver: true},
	}

	res, err := NewOrchestrator(fetcher, repo, nopLogger{}).Run(context.Background(), Options{SyncType: "manual", DaysToSync: 7})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !res.Success || res.EventsProcessed != 2 || res.VehiclesProcessed != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	run := repo.singleRun(t)
	if run.Status != fleet.RunCompleted {
		t.Fatalf("expected run completed, got %s", run.Status)
	}
	if run.RecordsProcessed != 2 {
		t.Fatalf("expected 2 records processed, got %d", run.RecordsProcessed)
	}

	ev := repo.events["ev-1"]
	if ev == nil {
		t.Fatalf("expected event ev-1 stored")
	}
	if ev.EventType != "harsh_brake" || ev.Severity != "high" {
		t.Fatalf("expected mapped vocabulary, got %s/%s", ev.EventType, ev.Severity)
	}
	if ev.EmployeeID == nil || *ev.EmployeeID != "emp-1" {
		t.Fatalf("expected event attributed to emp-1")
	}

	if len(repo.scores) != 1 {
		t.Fatalf("expected 1 daily score row, got %d", len(repo.scores))
	}
	for _, s := range repo.scores {
		if s.BrakeScore != 70 || s.SpeedScore != 85 || s.OverallScore != 88.75 {
			t.Fatalf("unexpected scores: %+v", s)
		}
	}
	if repo.rollupCalls != 1 {
		t.Fatalf("expected 1 rollup pass, got %d", repo.rollupCalls)
	}
}

func TestRunPartialFailureIsolation(t *testing.T) {
	at := time.Now().UTC().Add(-24 * time.Hour)

	fetcher := &fakeFetcher{
		vehicles: []telematics.Vehicle{providerVehicle(1), providerVehicle(2), providerVehicle(3)},
		events: map[string][]telematics.SafetyEvent{
			"ext-2": {providerEvent("ev-y", "ext-2", at)},
			"ext-3": {providerEvent("ev-z", "ext-3", at)},
		},
		eventsErr: map[string]error{
			"ext-1": errors.New("connection reset"),
		},
	}
	repo := newFakeRepo()

	res, err := NewOrchestrator(fetcher, repo, nopLogger{}).Run(context.Background(), Options{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if res.EventsProcessed != 2 {
		t.Fatalf("expected events from healthy vehicles counted, got %d", res.EventsProcessed)
	}
	if res.VehiclesProcessed != 3 {
		t.Fatalf("expected all 3 vehicles processed, got %d", res.VehiclesProcessed)
	}
	if repo.singleRun(t).Status != fleet.RunCompleted {
		t.Fatalf("expected run completed despite single-vehicle failure")
	}
}

func TestRunUnattributedEvent(t *testing.T) {
	at := time.Now().UTC().Add(-24 * time.Hour)
	day := at.Format("2006-01-02")

	fetcher := &fakeFetcher{
		vehicles: []telematics.Vehicle{providerVehicle(1)},
		events: map[string][]telematics.SafetyEvent{
			"ext-1": {providerEvent("ev-1", "ext-1", at)},
		},
		behavior: map[string][]telematics.DriverBehavior{
			"ext-1": {{Date: day, MilesDriven: 40}},
		},
	}
	repo := newFakeRepo() // 没有任何分配记录

	if _, err := NewOrchestrator(fetcher, repo, nopLogger{}).Run(context.Background(), Options{}); err != nil {
		t.Fatalf("Run: %v", err)
	}

	ev := repo.events["ev-1"]
	if ev == nil {
		t.Fatalf("expected unattributed event stored")
	}
	if ev.EmployeeID != nil {
		t.Fatalf("expected nil employee on unattributed event")
	}
	if len(repo.scores) != 0 {
		t.Fatalf("expected behavior row without driver to be dropped, got %d score rows", len(repo.scores))
	}
}

func TestRunAuthFailureIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{authErr: errors.New("invalid client credentials")}
	repo := newFakeRepo()

	_, err := NewOrchestrator(fetcher, repo, nopLogger{}).Run(context.Background(), Options{})
	if err == nil {
		t.Fatalf("expected auth failure to abort the run")
	}

	run := repo.singleRun(t)
	if run.Status != fleet.RunFailed {
		t.Fatalf("expected run failed, got %s", run.Status)
	}
	if run.ErrorMessage == "" {
		t.Fatalf("expected error message recorded on run")
	}
}

func TestRunRosterFailureIsFatal(t *testing.T) {
	fetcher := &fakeFetcher{rosterErr: errors.New("503 service unavailable")}
	repo := newFakeRepo()

	if _, err := NewOrchestrator(fetcher, repo, nopLogger{}).Run(context.Background(), Options{}); err == nil {
		t.Fatalf("expected roster failure to abort the run")
	}
	if repo.singleRun(t).Status != fleet.RunFailed {
		t.Fatalf("expected run failed")
	}
}

func TestRunIsIdempotentAcrossReruns(t *testing.T) {
	at := time.Now().UTC().Add(-24 * time.Hour)
	day := at.Format("2006-01-02")

	fetcher := &fakeFetcher{
		vehicles: []telematics.Vehicle{providerVehicle(1)},
		events: map[string][]telematics.SafetyEvent{
			"ext-1": {providerEvent("ev-1", "ext-1", at)},
		},
		behavior: map[string][]telematics.DriverBehavior{
			"ext-1": {{Date: day, MilesDriven: 80, HarshBrakeCount: 1}},
		},
	}
	repo := newFakeRepo()
	repo.assignmentsByVIN["VIN0001"] = []fleet.VehicleAssignment{
		{EmployeeID: "emp-1", AssignedDate: at.AddDate(0, -1, 0), IsPrimaryDriver: true},
	}

	orch := NewOrchestrator(fetcher, repo, nopLogger{})
	if _, err := orch.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("first run: %v", err)
	}
	if _, err := orch.Run(context.Background(), Options{}); err != nil {
		t.Fatalf("second run: %v", err)
	}

	if len(repo.events) != 1 {
		t.Fatalf("expected no duplicate events after rerun, got %d", len(repo.events))
	}
	if len(repo.scores) != 1 {
		t.Fatalf("expected single score row after rerun, got %d", len(repo.scores))
	}
}
