package timerq

import (
	"fmt"
	"sync"
	"time"

	"github.com/godyy/gtimerq/clock"
)

// ActiveQueue 拥有一个工作 goroutine 的定时器队列：工作 goroutine 睡眠至
// 下一个到期时间或被 Reschedule 唤醒，然后调用 Process 驱动到期.
// 通过 AllocateActiveQueue 获取，通过 Release 归还.
type ActiveQueue struct {
	queue     *TimerQueue
	priority  int
	okToShare bool
	refCount  int // 由 queueRegistry 的锁保护.

	cReschedule chan struct{} // 重新调度信号，容量 1.
	cTerminate  chan struct{} // 终止信号.
	cExited     chan struct{} // 工作 goroutine 已退出.
	closeOnce   sync.Once
}

func newActiveQueue(okToShare bool, priority int, options ...Option) (*ActiveQueue, error) {
	aq := &ActiveQueue{
		priority:    priority,
		okToShare:   okToShare,
		cReschedule: make(chan struct{}, 1),
		cTerminate:  make(chan struct{}),
		cExited:     make(chan struct{}),
	}

	queue, err := newTimerQueue(aq, applyOptions(options))
	if err != nil {
		return nil, err
	}
	aq.queue = queue
	aq.queue.logger.DebugFields("active queue started", lfdPriority(priority))

	go aq.run()

	return aq, nil
}

// run 工作 goroutine 主循环.
func (aq *ActiveQueue) run() {
	defer close(aq.cExited)

	for {
		delay, ok := aq.queue.Process(aq.queue.clk.Now())

		var cExpire <-chan time.Time
		var tm *time.Timer
		if ok {
			aq.queue.logger.DebugFields("worker sleeping", lfdDelay(delay))
			tm = time.NewTimer(delay)
			cExpire = tm.C
		}

		select {
		case <-aq.cTerminate:
			if tm != nil {
				tm.Stop()
			}
			return
		case <-aq.cReschedule:
			if tm != nil {
				tm.Stop()
			}
		case <-cExpire:
		}
	}
}

// Reschedule 实现 Notify：唤醒工作 goroutine 重新读取下一个到期时间.
// 幂等，信号会被合并.
func (aq *ActiveQueue) Reschedule() {
	select {
	case aq.cReschedule <- struct{}{}:
	default:
	}
}

// Quantum 实现 Notify. goroutine 没有固定的调度粒度，返回 0.
func (aq *ActiveQueue) Quantum() time.Duration {
	return 0
}

// Priority 返回队列的优先级分组键.
func (aq *ActiveQueue) Priority() int {
	return aq.priority
}

// sharingOK 返回该队列是否可被共享.
func (aq *ActiveQueue) sharingOK() bool {
	return aq.okToShare
}

// CreateTimer 创建定时器.
func (aq *ActiveQueue) CreateTimer() (*Timer, error) {
	return aq.queue.CreateTimer()
}

// CreateTimerFunc 创建绑定回调函数的定时器.
func (aq *ActiveQueue) CreateTimerFunc(fn func(now clock.Instant) ExpireResult) (*FuncTimer, error) {
	return aq.queue.CreateTimerFunc(fn)
}

// Queue 返回底层 TimerQueue.
func (aq *ActiveQueue) Queue() *TimerQueue {
	return aq.queue
}

// Release 归还队列：引用计数递减，归零时终止工作 goroutine 并销毁队列.
func (aq *ActiveQueue) Release() {
	registry().release(aq)
}

// close 终止工作 goroutine 并关闭队列. 等待工作 goroutine 退出时不持有
// 队列锁.
func (aq *ActiveQueue) close() {
	aq.closeOnce.Do(func() {
		close(aq.cTerminate)
	})
	<-aq.cExited
	aq.queue.Close()
}

// Show 返回队列的调试描述.
func (aq *ActiveQueue) Show(level int) string {
	s := fmt.Sprintf("active timer queue, priority = %d, okToShare = %v\n", aq.priority, aq.okToShare)
	if level >= 1 {
		s += aq.queue.Show(level - 1)
	}
	return s
}
