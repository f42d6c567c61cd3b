package timerq

import (
	"fmt"
	"time"

	"github.com/godyy/gtimerq/clock"
)

// timerState 定时器状态机，仅有两个状态. 不需要原子操作，状态变更
// 全程受队列互斥锁保护.
type timerState int8

const (
	stateLimbo   timerState = iota // 不在堆中，未被调度
	statePending                   // 在堆中，等待到期
)

// Timer 是队列中的一个定时任务. 只能通过 TimerQueue.CreateTimer /
// CreateTimerFunc 构造，通过 Destroy 回收；调用方不得自行持有裸值或
// 跨队列移动.
type Timer struct {
	queue *TimerQueue

	id         uint64
	state      timerState
	notifier   Notifier
	expiration clock.Instant
	heapIndex  int
}

// HeapLess 实现 gheap.Item，按到期时间排序，到期时间相同的情况下
// 按创建顺序（id 递增）排序以保证堆序可重复.
func (t *Timer) HeapLess(other *Timer) bool {
	if t.expiration.Before(other.expiration) {
		return true
	}
	if other.expiration.Before(t.expiration) {
		return false
	}
	return t.id < other.id
}

// HeapIndex 实现 gheap.Item.
func (t *Timer) HeapIndex() int { return t.heapIndex }

// SetHeapIndex 实现 gheap.Item.
func (t *Timer) SetHeapIndex(index int) { t.heapIndex = index }

// Start (重新)调度该定时器，于 at 到期时调用 n.Expire. 初次启动或
// 使该定时器成为新堆顶时返回 1，否则返回 0. 调用方无需关心返回值
// 即可正确使用本 API，它主要用于测试断言.
func (t *Timer) Start(n Notifier, at clock.Instant) int {
	if t.queue == nil {
		panic(ErrTimerDestroyed)
	}
	return t.queue.startTimer(t, n, at)
}

// StartIn 是 Start 的便捷形式，到期时间取队列时钟的当前时刻加 delay.
func (t *Timer) StartIn(n Notifier, delay time.Duration) int {
	if t.queue == nil {
		panic(ErrTimerDestroyed)
	}
	now := t.queue.clk.Now()
	return t.Start(n, now.Add(delay))
}

// Cancel 取消该定时器. 若定时器当前正由另一个 goroutine 执行其 Expire
// 回调，Cancel 会阻塞直至回调返回；若调用方正是那个正在执行回调的
// goroutine（即从回调内部自我取消），Cancel 立即返回而不等待.
func (t *Timer) Cancel() (wasPending bool) {
	if t.queue == nil {
		panic(ErrTimerDestroyed)
	}
	return t.queue.cancelTimer(t)
}

// Destroy 等价于 Cancel 后释放底层存储，是回收 Timer 的唯一合法方式.
// 允许在该定时器自身的 Expire 回调内部调用；此后队列不会再触碰该
// 实例的内存.
func (t *Timer) Destroy() {
	if t.queue == nil {
		panic(ErrTimerDestroyed)
	}
	t.queue.destroyTimer(t)
}

// ExpireInfo 返回该定时器是否处于 Pending 状态及其到期时间，在队列
// 互斥锁下读取.
func (t *Timer) ExpireInfo() (active bool, at clock.Instant) {
	if t.queue == nil {
		panic(ErrTimerDestroyed)
	}
	return t.queue.timerExpireInfo(t)
}

// ExpireDelay 返回距到期还需等待的时长，负值钳制为 0.
// 定时器不处于 Pending 时 ok 为 false.
func (t *Timer) ExpireDelay() (delay time.Duration, ok bool) {
	if t.queue == nil {
		panic(ErrTimerDestroyed)
	}
	active, at := t.queue.timerExpireInfo(t)
	if !active {
		return 0, false
	}
	delay = at.Sub(t.queue.clk.Now())
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

// Show 返回该定时器的调试描述.
func (t *Timer) Show(level int) string {
	if t.queue == nil {
		panic(ErrTimerDestroyed)
	}
	t.queue.mu.Lock()
	defer t.queue.mu.Unlock()
	return t.showLocked(level, t.queue.clk.Now())
}

// showLocked 在队列锁下构造调试描述.
func (t *Timer) showLocked(level int, now clock.Instant) string {
	var stateName string
	var delay time.Duration
	if t.state == statePending {
		stateName = "pending"
		delay = t.expiration.Sub(now)
	} else {
		stateName = "limbo"
	}
	s := fmt.Sprintf("timer %d, state = %s, delay = %s\n", t.id, stateName, delay)
	if level >= 1 && t.notifier != nil {
		if shower, ok := t.notifier.(Shower); ok {
			s += shower.Show(level - 1)
		}
	}
	return s
}
