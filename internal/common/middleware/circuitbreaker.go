package middleware

import (
	"errors"
	"sync"
	"time"
)

// ErrBreakerOpen 熔断开启期间的快速失败错误
var ErrBreakerOpen = errors.New("circuit breaker is open")

// CircuitBreakerState 熔断器状态
type CircuitBreakerState int

const (
	StateClosed   CircuitBreakerState = iota // 关闭状态（正常）
	StateOpen                                // 开启状态（熔断）
	StateHalfOpen                            // 半开状态（尝试恢复）
)

// CircuitBreaker 熔断器，保护对外部依赖的调用。
type CircuitBreaker struct {
	name          string
	maxFailures   int           // 连续失败多少次后熔断
	resetTimeout  time.Duration // 熔断后多久进入半开
	halfOpenMax   int           // 半开状态最大试探请求数
	failures      int
	halfOpenCount int
	state         CircuitBreakerState
	lastFailTime  time.Time
	mu            sync.Mutex
}

// NewCircuitBreaker 创建熔断器
func NewCircuitBreaker(name string, maxFailures int, resetTimeout time.Duration) *CircuitBreaker {
	return &CircuitBreaker{
		name:         name,
		maxFailures:  maxFailures,
		resetTimeout: resetTimeout,
		halfOpenMax:  3,
		state:        StateClosed,
	}
}

// Call 执行 fn，并根据结果维护熔断状态。
func (cb *CircuitBreaker) Call(fn func() error) error {
	if err := cb.beforeCall(); err != nil {
		return err
	}

	err := fn()
	cb.afterCall(err)
	return err
}

func (cb *CircuitBreaker) beforeCall() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == StateOpen {
		if time.Since(cb.lastFailTime) < cb.resetTimeout {
			return ErrBreakerOpen
		}
		cb.state = StateHalfOpen
		cb.halfOpenCount = 0
	}

	if cb.state == StateHalfOpen {
		if cb.halfOpenCount >= cb.halfOpenMax {
			return ErrBreakerOpen
		}
		cb.halfOpenCount++
	}
	return nil
}

func (cb *CircuitBreaker) afterCall(err error) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.failures++
		cb.lastFailTime = time.Now()
		if cb.state == StateHalfOpen || cb.failures >= cb.maxFailures {
			cb.state = StateOpen
			cb.halfOpenCount = 0
		}
		return
	}

	if cb.state == StateHalfOpen {
		cb.state = StateClosed
		cb.halfOpenCount = 0
	}
	cb.failures = 0
}

// GetState 获取当前状态
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
