package telematics

import (
	"fmt"
	"time"
)

// 供应商事件类型/严重级别到内部词表的映射。
// 供应商侧是大写下划线风格，内部统一为小写 snake_case。
var (
	eventTypeToInternal = map[string]string{
		"HARSH_BRAKE":        "harsh_brake",
		"RAPID_ACCELERATION": "rapid_accel",
		"SPEEDING":           "speeding",
		"SEATBELT_OFF":       "seatbelt_off",
		"COLLISION_ALERT":    "collision",
	}
	severityToInternal = map[string]string{
		"LOW":      "low",
		"MEDIUM":   "medium",
		"HIGH":     "high",
		"CRITICAL": "critical",
	}
)

// InternalEventType 将供应商事件类型映射为内部词表，未知类型返回 false。
func InternalEventType(providerType string) (string, bool) {
	t, ok := eventTypeToInternal[providerType]
	return t, ok
}

// InternalSeverity 将供应商严重级别映射为内部词表，未知级别返回 false。
func InternalSeverity(providerSeverity string) (string, bool) {
	s, ok := severityToInternal[providerSeverity]
	return s, ok
}

// Token OAuth client-credentials 响应
type Token struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Vehicle 供应商车辆信息
type Vehicle struct {
	VehicleID    string `json:"vehicleId"` // 供应商侧车辆 ID
	VIN          string `json:"vin"`
	Make         string `json:"make"`
	Model        string `json:"model"`
	Year         int    `json:"year"`
	LicensePlate string `json:"licensePlate,omitempty"`
}

// Validate 车辆记录入境校验
func (v *Vehicle) Validate() error {
	if v.VehicleID == "" {
		return fmt.Errorf("vehicle: missing vehicleId")
	}
	if v.VIN == "" {
		return fmt.Errorf("vehicle %s: missing vin", v.VehicleID)
	}
	return nil
}

// Location 事件发生位置
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address,omitempty"`
}

// SafetyEvent 供应商安全事件。EventID 是幂等键。
type SafetyEvent struct {
	EventID   string                 `json:"eventId"`
	VehicleID string                 `json:"vehicleId"`
	Timestamp time.Time              `json:"timestamp"`
	EventType string                 `json:"eventType"`
	Severity  string                 `json:"severity"`
	Location  *Location              `json:"location,omitempty"`
	Speed     *float64               `json:"speed,omitempty"`
	Duration  *float64               `json:"duration,omitempty"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
}

// Validate 事件入境校验：未知词表值在这里直接失败，
// 避免脏数据继续往存储层流。
func (e *SafetyEvent) Validate() error {
	if e.EventID == "" {
		return fmt.Errorf("safety event: missing eventId")
	}
	if e.Timestamp.IsZero() {
		return fmt.Errorf("safety event %s: missing timestamp", e.EventID)
	}
	if _, ok := eventTypeToInternal[e.EventType]; !ok {
		return fmt.Errorf("safety event %s: unknown eventType %q", e.EventID, e.EventType)
	}
	if _, ok := severityToInternal[e.Severity]; !ok {
		return fmt.Errorf("safety event %s: unknown severity %q", e.EventID, e.Severity)
	}
	return nil
}

// DriverBehavior 供应商按天汇总的驾驶行为记录
type DriverBehavior struct {
	Date             string   `json:"date"` // YYYY-MM-DD
	MilesDriven      float64  `json:"milesDriven"`
	HarshBrakeCount  int      `json:"harshBrakeCount"`
	RapidAccelCount  int      `json:"rapidAccelCount"`
	SpeedingCount    int      `json:"speedingCount"`
	SeatbeltOffCount int      `json:"seatbeltOffCount"`
	OverallScore     *float64 `json:"overallScore,omitempty"` // 供应商自己算的综合分，可能缺失
}

// ParseDate 解析行为记录日期
func (b *DriverBehavior) ParseDate() (time.Time, error) {
	t, err := time.Parse("2006-01-02", b.Date)
	if err != nil {
		return time.Time{}, fmt.Errorf("driver behavior: bad date %q: %w", b.Date, err)
	}
	return t, nil
}

// Validate 行为记录入境校验
func (b *DriverBehavior) Validate() error {
	if _, err := b.ParseDate(); err != nil {
		return err
	}
	if b.MilesDriven < 0 {
		return fmt.Errorf("driver behavior %s: negative milesDriven", b.Date)
	}
	if b.HarshBrakeCount < 0 || b.RapidAccelCount < 0 || b.SpeedingCount < 0 || b.SeatbeltOffCount < 0 {
		return fmt.Errorf("driver behavior %s: negative counter", b.Date)
	}
	return nil
}
