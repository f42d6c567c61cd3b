// Package clock 提供定时器队列所使用的唯一时间来源：单调递增的 Instant.
// 所有到期比较均通过此包完成，绝不使用墙钟时间排序.
package clock

import "time"

// Instant 单调时间点.
type Instant struct {
	t time.Time
}

// Sub 返回 a - b 的间隔.
func (a Instant) Sub(b Instant) time.Duration {
	return a.t.Sub(b.t)
}

// Add 返回 a + d 之后的时间点.
func (a Instant) Add(d time.Duration) Instant {
	return Instant{t: a.t.Add(d)}
}

// Before 报告 a 是否早于 b.
func (a Instant) Before(b Instant) bool {
	return a.t.Before(b.t)
}

// After 报告 a 是否晚于 b.
func (a Instant) After(b Instant) bool {
	return a.t.After(b.t)
}

// IsZero 报告 Instant 是否为零值.
func (a Instant) IsZero() bool {
	return a.t.IsZero()
}

// String 便于调试打印.
func (a Instant) String() string {
	return a.t.Format(time.RFC3339Nano)
}

// Clock 是 Instant 的来源，定义为接口以便测试注入模拟时钟.
type Clock interface {
	Now() Instant
}

// Real 是生产环境使用的单调时钟，基于 time.Now() 内置的单调读数.
type Real struct{}

// Now 返回当前时间点.
func (Real) Now() Instant {
	return Instant{t: time.Now()}
}

// FromTime 将一个 time.Time 转换为 Instant，主要供测试以及与标准库互操作使用.
func FromTime(t time.Time) Instant {
	return Instant{t: t}
}
