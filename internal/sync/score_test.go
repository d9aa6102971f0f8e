package sync

import "testing"

func TestComputeScores(t *testing.T) {
	s := ComputeScores(BehaviorCounters{HarshBrake: 3, RapidAccel: 0, Speeding: 1, SeatbeltOff: 0}, nil)
	if s.Brake != 70 {
		t.Fatalf("expected brake score 70, got %v", s.Brake)
	}
	if s.Acceleration != 100 {
		t.Fatalf("expected acceleration score 100, got %v", s.Acceleration)
	}
	if s.Speed != 85 {
		t.Fatalf("expected speed score 85, got %v", s.Speed)
	}
	if s.Seatbelt != 100 {
		t.Fatalf("expected seatbelt score 100, got %v", s.Seatbelt)
	}
	if s.Overall != 88.75 {
		t.Fatalf("expected overall 88.75, got %v", s.Overall)
	}
}

func TestComputeScoresFloorsAtZero(t *testing.T) {
	s := ComputeScores(BehaviorCounters{HarshBrake: 15, Speeding: 20}, nil)
	if s.Brake != 0 {
		t.Fatalf("expected brake score floored at 0, got %v", s.Brake)
	}
	if s.Speed != 0 {
		t.Fatalf("expected speed score floored at 0, got %v", s.Speed)
	}
}

func TestComputeScoresSeatbelt(t *testing.T) {
	s := ComputeScores(BehaviorCounters{SeatbeltOff: 1}, nil)
	if s.Seatbelt != 0 {
		t.Fatalf("expected seatbelt score 0 after any violation, got %v", s.Seatbelt)
	}
}

func TestComputeScoresPrefersProviderOverall(t *testing.T) {
	provider := 42.5
	s := ComputeScores(BehaviorCounters{}, &provider)
	if s.Overall != 42.5 {
		t.Fatalf("expected provider overall 42.5, got %v", s.Overall)
	}
}

func TestBehaviorCountersTotal(t *testing.T) {
	c := BehaviorCounters{HarshBrake: 1, RapidAccel: 2, Speeding: 3, SeatbeltOff: 4}
	if c.Total() != 10 {
		t.Fatalf("expected total 10, got %d", c.Total())
	}
}
