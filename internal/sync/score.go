package sync

// 扣分权重：每次急刹/急加速扣 10 分，每次超速扣 15 分，
// 未系安全带出现即安全带项直接清零。
const (
	penaltyHarshBrake = 10
	penaltyRapidAccel = 10
	penaltySpeeding   = 15
)

// BehaviorCounters 单车单日的原始行为计数。
type BehaviorCounters struct {
	HarshBrake  int
	RapidAccel  int
	Speeding    int
	SeatbeltOff int
}

// Total 事件总数
func (c BehaviorCounters) Total() int {
	return c.HarshBrake + c.RapidAccel + c.Speeding + c.SeatbeltOff
}

// Scores 归一化后的风险子分与综合分，区间 [0, 100]。
type Scores struct {
	Brake        float64
	Acceleration float64
	Speed        float64
	Seatbelt     float64
	Overall      float64
}

// ComputeScores 由行为计数计算评分。纯函数，无 I/O。
// 供应商给出综合分时优先采用；否则取四个子分的算术平均。
func ComputeScores(c BehaviorCounters, providerOverall *float64) Scores {
	s := Scores{
		Brake:        floorZero(100 - float64(penaltyHarshBrake*c.HarshBrake)),
		Acceleration: floorZero(100 - float64(penaltyRapidAccel*c.RapidAccel)),
		Speed:        floorZero(100 - float64(penaltySpeeding*c.Speeding)),
		Seatbelt:     100,
	}
	if c.SeatbeltOff > 0 {
		s.Seatbelt = 0
	}

	if providerOverall != nil {
		s.Overall = *providerOverall
	} else {
		s.Overall = (s.Brake + s.Acceleration + s.Speed + s.Seatbelt) / 4
	}
	return s
}

// floorZero 子分不允许为负
func floorZero(v float64) float64 {
	if v < 0 {
		return 0
	}
	return v
}
