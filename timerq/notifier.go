package timerq

import (
	"fmt"
	"time"

	"github.com/godyy/gtimerq/clock"
)

// Notifier 是定时器到期时被调用的回调接口. Expire 在队列锁被释放
// 之后调用，因此可以在回调内部安全地 Start/Cancel/Destroy 同一个
// （或任意其它）Timer.
type Notifier interface {
	Expire(now clock.Instant) ExpireResult
}

// NotifierFunc 把一个普通函数适配为 Notifier，用法同 http.HandlerFunc.
type NotifierFunc func(now clock.Instant) ExpireResult

// Expire 实现 Notifier.
func (f NotifierFunc) Expire(now clock.Instant) ExpireResult {
	return f(now)
}

// Shower 是可选接口，实现者可以在 show 类调试输出中提供自身描述.
type Shower interface {
	Show(level int) string
}

// ExpireResult 是 Expire 的返回值，只能通过 NoRestart/Restart 构造，
// 使"不重启却带延迟"或"重启却带非法延迟"这类状态在类型层面不可表达.
type ExpireResult struct {
	restart bool
	delay   time.Duration
}

// NoRestart 表示该定时器到期后不再重新调度.
func NoRestart() ExpireResult {
	return ExpireResult{}
}

// Restart 表示该定时器应在 delay 之后重新到期. delay 必须是
// 非负、有限的值，否则视为调用方的逻辑错误并同步 panic
// ——绝不会被悄悄钳制或转换为队列状态.
func Restart(delay time.Duration) ExpireResult {
	if delay < 0 {
		panic(fmt.Sprintf("timerq: Restart delay must be >= 0, got %s", delay))
	}
	return ExpireResult{restart: true, delay: delay}
}

// isRestart 供队列内部使用.
func (r ExpireResult) isRestart() (time.Duration, bool) {
	return r.delay, r.restart
}
