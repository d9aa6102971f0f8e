package telematics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/FleetLinkSync/FleetLinkSync/internal/common/config"
	"github.com/FleetLinkSync/FleetLinkSync/internal/common/logger"
	"github.com/FleetLinkSync/FleetLinkSync/internal/common/middleware"
)

// Client 车联网供应商 API 客户端。
//
// token 在一次同步运行开始时通过 Authenticate 获取一次，
// 之后在所有 worker 间只读共享，运行中不做刷新。
type Client struct {
	cfg     config.ProviderConfig
	http    *http.Client
	limiter *middleware.TokenBucket
	breaker *middleware.CircuitBreaker
	log     logger.Logger
	token   string
}

// NewClient 创建客户端。所有请求共用一个 http.Client 和限流桶。
func NewClient(cfg config.ProviderConfig, log logger.Logger) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: timeout},
		limiter: middleware.NewTokenBucket(cfg.RateBurst, cfg.RateLimitPerSec),
		breaker: middleware.NewCircuitBreaker("telematics-api", 5, 30*time.Second),
		log:     log,
	}
}

// Authenticate 以 client-credentials 方式获取访问令牌。
// 失败对整次同步是致命的，由调用方决定终止。
func (c *Client) Authenticate(ctx context.Context) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", c.cfg.ClientID)
	form.Set("client_secret", c.cfg.ClientSecret)
	form.Set("scope", "vehicle.telematics vehicle.info")

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.cfg.BaseURL+"/oauth/token", strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build token request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("request token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("request token: unexpected status %d", resp.StatusCode)
	}

	var token Token
	if err := json.NewDecoder(resp.Body).Decode(&token); err != nil {
		return fmt.Errorf("decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return fmt.Errorf("token response has empty access_token")
	}

	c.token = token.AccessToken
	return nil
}

// FetchVehicles 拉取车队车辆清单。失败对整次同步是致命的。
func (c *Client) FetchVehicles(ctx context.Context) ([]Vehicle, error) {
	body, err := c.get(ctx, fmt.Sprintf("/v1/fleets/%s/vehicles", c.cfg.FleetID), nil)
	if err != nil {
		return nil, fmt.Errorf("fetch vehicles: %w", err)
	}

	var out struct {
		Vehicles []Vehicle `json:"vehicles"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("fetch vehicles: decode: %w", err)
	}

	vehicles := make([]Vehicle, 0, len(out.Vehicles))
	for i := range out.Vehicles {
		v := out.Vehicles[i]
		if err := v.Validate(); err != nil {
			// 单条脏数据不值得让整个车队同步失败，跳过并告警
			c.log.Warnf("skip invalid vehicle record: %v", err)
			continue
		}
		vehicles = append(vehicles, v)
	}
	return vehicles, nil
}

// FetchSafetyEvents 拉取单车在 [start, end) 窗口内的安全事件。
// 失败只影响该车辆，调用方按空结果降级处理。
func (c *Client) FetchSafetyEvents(ctx context.Context, externalVehicleID string, start, end time.Time) ([]SafetyEvent, error) {
	var events []SafetyEvent
	err := c.breaker.Call(func() error {
		body, err := c.get(ctx, fmt.Sprintf("/v1/vehicles/%s/safety-events", externalVehicleID), windowQuery(start, end))
		if err != nil {
			return err
		}
		var out struct {
			Events []SafetyEvent `json:"events"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		for i := range out.Events {
			if err := out.Events[i].Validate(); err != nil {
				return err
			}
		}
		events = out.Events
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch safety events vehicle=%s: %w", externalVehicleID, err)
	}
	return events, nil
}

// FetchDriverBehavior 拉取单车在 [start, end) 窗口内按天汇总的驾驶行为。
func (c *Client) FetchDriverBehavior(ctx context.Context, externalVehicleID string, start, end time.Time) ([]DriverBehavior, error) {
	var rows []DriverBehavior
	err := c.breaker.Call(func() error {
		body, err := c.get(ctx, fmt.Sprintf("/v1/vehicles/%s/driver-behavior", externalVehicleID), windowQuery(start, end))
		if err != nil {
			return err
		}
		var out struct {
			DailyBehavior []DriverBehavior `json:"dailyBehavior"`
		}
		if err := json.Unmarshal(body, &out); err != nil {
			return fmt.Errorf("decode: %w", err)
		}
		for i := range out.DailyBehavior {
			if err := out.DailyBehavior[i].Validate(); err != nil {
				return err
			}
		}
		rows = out.DailyBehavior
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch driver behavior vehicle=%s: %w", externalVehicleID, err)
	}
	return rows, nil
}

// get 统一的带令牌 GET：先过限流桶，再带 bearer 头请求。
func (c *Client) get(ctx context.Context, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	u := c.cfg.BaseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http get: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

func windowQuery(start, end time.Time) url.Values {
	q := url.Values{}
	q.Set("startDate", start.UTC().Format(time.RFC3339))
	q.Set("endDate", end.UTC().Format(time.RFC3339))
	return q
}
