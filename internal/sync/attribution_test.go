package sync

import (
	"testing"
	"time"

	"github.com/FleetLinkSync/FleetLinkSync/internal/fleet"
)

func date(s string) time.Time {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return t
}

func TestPickAssigneePrimaryWins(t *testing.T) {
	// A 的非主驾分配与 B 的主驾分配在 2024-02-15 同时生效
	unassigned := date("2024-03-01")
	assignments := []fleet.VehicleAssignment{
		{EmployeeID: "emp-a", AssignedDate: date("2024-01-01"), UnassignedDate: &unassigned, IsPrimaryDriver: false},
		{EmployeeID: "emp-b", AssignedDate: date("2024-02-01"), IsPrimaryDriver: true},
	}

	id, ok := PickAssignee(assignments)
	if !ok {
		t.Fatalf("expected an assignee")
	}
	if id != "emp-b" {
		t.Fatalf("expected primary driver emp-b, got %s", id)
	}
}

func TestPickAssigneeMostRecentWhenNoPrimary(t *testing.T) {
	assignments := []fleet.VehicleAssignment{
		{EmployeeID: "emp-old", AssignedDate: date("2024-01-01")},
		{EmployeeID: "emp-new", AssignedDate: date("2024-02-01")},
	}

	id, ok := PickAssignee(assignments)
	if !ok {
		t.Fatalf("expected an assignee")
	}
	if id != "emp-new" {
		t.Fatalf("expected most recently assigned emp-new, got %s", id)
	}
}

func TestPickAssigneeNone(t *testing.T) {
	if _, ok := PickAssignee(nil); ok {
		t.Fatalf("expected no assignee for empty assignments")
	}
}
