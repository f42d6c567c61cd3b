// Package timerq 实现按到期时间调度一次性回调的定时器队列，以及驱动它的
// 主动/被动两种外壳. 核心保证：Cancel 返回之后，该定时器的 Expire 回调
// 不会再被观察到（除非再次 Start）；所有回调均在队列锁释放之后调用.
package timerq

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/godyy/glog"
	"github.com/godyy/gtimerq/arena"
	"github.com/godyy/gtimerq/clock"
	"github.com/godyy/gtimerq/gheap"
	pkgerrors "github.com/pkg/errors"
)

// defaultExceptMsgMinPeriod 回调 panic 日志的最小间隔，默认 5 分钟.
const defaultExceptMsgMinPeriod = 5 * time.Minute

// Notify 队列向其驱动方反向通知的接口. Reschedule 要求驱动方重新读取
// 下一个到期时间（堆顶提前时由 Start 触发）；Quantum 返回驱动方的调度
// 粒度，无意义时返回 0.
type Notify interface {
	// Reschedule 唤醒驱动方. 必须是幂等的，且可在任意 goroutine 上调用.
	Reschedule()

	// Quantum 驱动方的调度粒度.
	Quantum() time.Duration
}

// timerArena Timer 的进程级 Arena 单例，所有队列共享，按队列分组.
var (
	timerArenaOnce sync.Once
	timerArena     *arena.Arena[Timer]
)

func getTimerArena() *arena.Arena[Timer] {
	timerArenaOnce.Do(func() {
		a, err := arena.New[Timer](arena.Config{})
		if err != nil {
			// 默认配置下不可能失败.
			panic(err)
		}
		timerArena = a
	})
	return timerArena
}

// queueIdGen 队列ID生成自增键，用于派生每个队列的 Arena 分组.
var queueIdGen uint64

// TimerQueue 定时器队列核心. 单把互斥锁保护堆、expiring 标记、
// cancelPending 标志与 processGoId；任何用户回调都在锁外调用.
// TimerQueue 本身不驱动到期，由 ActiveQueue/PassiveQueue 在合适的
// 时机调用 Process.
type TimerQueue struct {
	mu     sync.Mutex            // 互斥锁.
	heap   *gheap.Heap[*Timer]   // 按到期时间排序的最小堆.
	timers map[uint64]*Timer     // Pending 定时器映射，供调试输出遍历.
	notify Notify                // 驱动方通知接口.
	clk    clock.Clock           // 时间来源.
	logger glog.Logger           // 日志工具.
	closed bool                  // 是否已关闭.

	expiring      *Timer     // 正在到期（回调执行中）的定时器.
	cancelPending bool       // 有人在回调执行期间取消了 expiring.
	cancelCond    *sync.Cond // cancel/expire 同步条件变量.
	processGoId   uint64     // 正在执行 Process 的 goroutine, 0 表示无.

	timerIdGen uint64 // 定时器ID生成自增键.

	exceptMsgMinPeriod time.Duration // panic 日志最小间隔.
	exceptMsgAt        clock.Instant // 上一次 panic 日志时间，仅 Process goroutine 触碰.

	arenaGroup  arena.GroupID       // 本队列的 Arena 分组.
	arenaHandle arena.Handle[Timer] // 本队列在 Arena 上的租约.
}

// newTimerQueue 构造 TimerQueue. notify 不可为 nil.
func newTimerQueue(notify Notify, opts *optionSet) (*TimerQueue, error) {
	if notify == nil {
		return nil, pkgerrors.New("timerq: notify nil")
	}

	qid := atomic.AddUint64(&queueIdGen, 1)
	group := arena.GroupID(fmt.Sprintf("timerq/%d", qid))
	handle, err := getTimerArena().Bind(group)
	if err != nil {
		return nil, pkgerrors.WithMessage(err, "bind timer arena")
	}

	q := &TimerQueue{
		heap:               gheap.New[*Timer](),
		timers:             make(map[uint64]*Timer),
		notify:             notify,
		clk:                opts.clk,
		logger:             opts.logger,
		exceptMsgMinPeriod: opts.exceptMsgMinPeriod,
		arenaGroup:         group,
		arenaHandle:        handle,
	}
	q.cancelCond = sync.NewCond(&q.mu)

	if q.clk == nil {
		q.clk = clock.Real{}
	}
	if q.logger == nil {
		q.logger = createStdLogger(glog.WarnLevel)
	}
	if q.exceptMsgMinPeriod <= 0 {
		q.exceptMsgMinPeriod = defaultExceptMsgMinPeriod
	}

	return q, nil
}

// Clock 返回队列的时间来源.
func (q *TimerQueue) Clock() clock.Clock {
	return q.clk
}

// CreateTimer 从 Arena 分配一个新的定时器. 定时器初始处于 Limbo 状态，
// 通过 Start 调度，通过 Destroy 回收.
func (q *TimerQueue) CreateTimer() (*Timer, error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil, ErrQueueClosed
	}

	t, err := q.arenaHandle.Alloc()
	if err != nil {
		return nil, pkgerrors.WithMessage(err, "alloc timer")
	}

	t.queue = q
	t.id = atomic.AddUint64(&q.timerIdGen, 1)
	t.state = stateLimbo
	t.notifier = nil
	t.expiration = clock.Instant{}
	t.heapIndex = -1
	return t, nil
}

// FuncTimer 绑定了回调函数的定时器：回调以固定的 Notifier 身份参与
// 调度，Start 无需再传入 Notifier.
type FuncTimer struct {
	*Timer
	n Notifier
}

// Start 调度该定时器于 at 到期.
func (t *FuncTimer) Start(at clock.Instant) int {
	return t.Timer.Start(t.n, at)
}

// StartIn 调度该定时器于 delay 之后到期.
func (t *FuncTimer) StartIn(delay time.Duration) int {
	return t.Timer.StartIn(t.n, delay)
}

// CreateTimerFunc 创建绑定回调函数 fn 的定时器.
func (q *TimerQueue) CreateTimerFunc(fn func(now clock.Instant) ExpireResult) (*FuncTimer, error) {
	if fn == nil {
		return nil, ErrNoNotifier
	}
	t, err := q.CreateTimer()
	if err != nil {
		return nil, err
	}
	return &FuncTimer{Timer: t, n: NotifierFunc(fn)}, nil
}

// expDelayLocked 返回距堆顶到期还需等待的时长，负值钳制为 0.
// 堆为空时 ok 返回 false，表示没有截止时间.
func (q *TimerQueue) expDelayLocked(now clock.Instant) (delay time.Duration, ok bool) {
	top, exists := q.heap.Top()
	if !exists {
		return 0, false
	}
	delay = top.expiration.Sub(now)
	if delay < 0 {
		delay = 0
	}
	return delay, true
}

// Process 驱动到期：循环弹出（或原地重排）所有到期时间不晚于 now 的
// 定时器并在锁外调用其回调，返回距下一个到期还需等待的时长.
// ok 为 false 表示堆为空、没有截止时间. 同一队列同一时刻至多一个
// goroutine 在 Process 内部；并发调用立即返回当前等待时长.
func (q *TimerQueue) Process(now clock.Instant) (delay time.Duration, ok bool) {
	q.mu.Lock()

	if q.processGoId != 0 {
		// 其它 goroutine 正在处理队列（或递归调用）.
		delay, ok = q.expDelayLocked(now)
		q.mu.Unlock()
		return delay, ok
	}

	q.processGoId = goroutineID()

	for {
		top, exists := q.heap.Top()
		if !exists || top.expiration.After(now) {
			break
		}

		// 标记当前到期定时器，以便 Cancel 检测回调是否执行中.
		t := top
		q.expiring = t

		// 清空 notifier 作为哨兵：回调返回后若 notifier 非空，
		// 说明回调期间有人重新 Start 了该定时器.
		notifier := t.notifier
		t.notifier = nil

		result := NoRestart()
		if notifier != nil {
			q.mu.Unlock()
			result = q.invokeExpire(notifier, now)
			q.mu.Lock()
		}

		// 定时器的堆内位置允许在其回调执行期间变化（重新调度或取消），
		// 以下按固定优先级区分四种情形.
		if q.cancelPending {
			// 回调执行期间有人 Cancel 了该定时器（可能已在回调内部将其
			// 销毁），此后不得再触碰 t. 每次 signal 释放一个等待者，
			// 等待者自身会继续传递信号.
			q.cancelPending = false
			q.cancelCond.Signal()
		} else if t.notifier != nil {
			// 回调期间有人重新 Start 了该定时器（本 goroutine 在回调内部，
			// 或其它 goroutine 异步），新的调度覆盖回调返回的重启请求；
			// 堆序已由 Start 恢复，这里无需再动.
		} else if d, restart := result.isRestart(); restart {
			t.notifier = notifier
			t.expiration = now.Add(d)
			q.heap.Fix(t.heapIndex)
		} else {
			q.removeLocked(t)
		}

		q.expiring = nil
	}

	q.processGoId = 0
	delay, ok = q.expDelayLocked(now)
	q.mu.Unlock()
	return delay, ok
}

// invokeExpire 在锁外调用回调并吸收 panic：回调的异常绝不会终止调度循环，
// 统一视为 NoRestart.
func (q *TimerQueue) invokeExpire(n Notifier, now clock.Instant) (result ExpireResult) {
	defer func() {
		if r := recover(); r != nil {
			q.logExpirePanic(r)
			result = NoRestart()
		}
	}()
	return n.Expire(now)
}

// logExpirePanic 以 exceptMsgMinPeriod 为最小间隔记录回调 panic.
// 只会被 Process goroutine 调用，节流状态无需加锁.
func (q *TimerQueue) logExpirePanic(r interface{}) {
	now := q.clk.Now()
	if !q.exceptMsgAt.IsZero() && now.Sub(q.exceptMsgAt) < q.exceptMsgMinPeriod {
		return
	}
	q.exceptMsgAt = now
	q.logger.ErrorFields("unexpected panic during timer expiration callback", lfdPanic(r))
	q.logger.WarnFields("periodic timer may not restart")
}

// removeLocked 将定时器移出堆并置为 Limbo.
func (q *TimerQueue) removeLocked(t *Timer) {
	q.heap.Remove(t.heapIndex)
	delete(q.timers, t.id)
	t.heapIndex = -1
	t.state = stateLimbo
}

// startTimer (重新)调度定时器. 初次启动（Limbo -> Pending）返回 1；
// 重新调度已 Pending 的定时器时，仅当其成为新堆顶才返回 1，否则返回 0.
// 若本次调用使堆顶到期时间提前，在释放锁之后唤醒驱动方.
func (q *TimerQueue) startTimer(t *Timer, n Notifier, at clock.Instant) int {
	q.mu.Lock()

	if q.closed {
		q.mu.Unlock()
		q.logger.WarnFields("start timer on closed queue", lfdTimerId(t.id))
		return 0
	}

	t.notifier = n

	var numNew int
	var resched bool
	if t.state == statePending {
		oldTop, _ := q.heap.Top()
		oldExp := oldTop.expiration
		t.expiration = at
		q.heap.Fix(t.heapIndex)
		newTop, _ := q.heap.Top()
		if newTop == t {
			numNew = 1
		}
		resched = newTop.expiration.Before(oldExp)
	} else {
		numNew = 1
		t.state = statePending
		t.expiration = at
		if oldTop, exists := q.heap.Top(); exists {
			q.heap.Push(t)
			newTop, _ := q.heap.Top()
			resched = newTop.expiration.Before(oldTop.expiration)
		} else {
			q.heap.Push(t)
			resched = true
		}
		q.timers[t.id] = t
	}

	q.mu.Unlock()

	// 释放锁之后再唤醒驱动方.
	if resched {
		q.notify.Reschedule()
	}
	return numNew
}

// cancelTimer 取消定时器. 若该定时器的回调正在其它 goroutine 上执行，
// 阻塞直至回调返回；若调用方正是执行回调的 goroutine，立即返回.
// 返回值表示该定时器此前是否处于 Pending 且其回调尚未开始执行.
func (q *TimerQueue) cancelTimer(t *Timer) (wasPending bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if t.state != statePending {
		return false
	}

	q.removeLocked(t)

	if q.expiring != t {
		return true
	}

	// 回调正在执行. 设置 cancelPending, 令 Process 回调返回后不再触碰
	// 该定时器（它可能已在回调内部被销毁）.
	q.cancelPending = true
	if q.processGoId != goroutineID() {
		// 跨 goroutine 取消：等待回调结束. 绝不在回调执行期间持有
		// 调度锁——等待走专用条件变量.
		for q.cancelPending && q.expiring == t {
			q.cancelCond.Wait()
		}
		// 传递信号，以防还有其它等待者.
		q.cancelCond.Signal()
	}
	return false
}

// destroyTimer 取消并回收定时器存储. 允许从该定时器自身的回调内部调用.
func (q *TimerQueue) destroyTimer(t *Timer) {
	q.cancelTimer(t)
	t.queue = nil
	t.notifier = nil
	getTimerArena().Free(t)
}

// timerExpireInfo 在队列锁下读取定时器状态.
func (q *TimerQueue) timerExpireInfo(t *Timer) (active bool, at clock.Instant) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if t.state == statePending {
		return true, t.expiration
	}
	return false, clock.Instant{}
}

// PendingCount 返回当前处于 Pending 状态的定时器数量.
func (q *TimerQueue) PendingCount() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.heap.Len()
}

// Show 返回队列的调试描述. level >= 1 时包含每个 Pending 定时器的状态.
func (q *TimerQueue) Show(level int) string {
	q.mu.Lock()
	defer q.mu.Unlock()

	var sb strings.Builder
	fmt.Fprintf(&sb, "timer queue with %d items pending\n", q.heap.Len())
	if level >= 1 {
		for _, t := range q.timers {
			sb.WriteString(t.showLocked(level-1, q.clk.Now()))
		}
	}
	return sb.String()
}

// Close 关闭队列：所有仍在堆中的定时器被置为 Limbo，不调用其回调，
// 也不回收其存储——定时器归用户所有，必须由用户 Destroy.
// 在其它 goroutine 仍可能访问队列定时器时关闭队列属于使用错误.
func (q *TimerQueue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	for {
		top, exists := q.heap.Top()
		if !exists {
			break
		}
		q.removeLocked(top)
	}
	q.mu.Unlock()

	q.arenaHandle.Close()
}
