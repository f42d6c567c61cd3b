package timerq

import (
	"time"

	"github.com/godyy/gtimerq/clock"
)

// passiveNotify 把宿主提供的回调适配为 Notify.
type passiveNotify struct {
	reschedule func()
	quantum    func() time.Duration
}

func (n *passiveNotify) Reschedule() {
	if n.reschedule != nil {
		n.reschedule()
	}
}

func (n *passiveNotify) Quantum() time.Duration {
	if n.quantum != nil {
		return n.quantum()
	}
	return 0
}

// PassiveQueue 由宿主循环泵动的定时器队列：宿主在合适的时机调用 Process
// 并根据返回值安排自己的睡眠预算；堆顶提前时通过 reschedule 回调通知宿主
// 重新计算.
type PassiveQueue struct {
	queue *TimerQueue
}

// NewPassiveQueue 构造 PassiveQueue. reschedule 在堆顶到期时间提前时被
// 调用（可为 nil）；quantum 返回宿主的调度粒度（可为 nil）.
func NewPassiveQueue(reschedule func(), quantum func() time.Duration, options ...Option) (*PassiveQueue, error) {
	queue, err := newTimerQueue(&passiveNotify{
		reschedule: reschedule,
		quantum:    quantum,
	}, applyOptions(options))
	if err != nil {
		return nil, err
	}
	return &PassiveQueue{queue: queue}, nil
}

// Process 驱动到期，返回距下一个到期还需等待的时长.
// ok 为 false 表示没有截止时间.
func (pq *PassiveQueue) Process(now clock.Instant) (delay time.Duration, ok bool) {
	return pq.queue.Process(now)
}

// CreateTimer 创建定时器.
func (pq *PassiveQueue) CreateTimer() (*Timer, error) {
	return pq.queue.CreateTimer()
}

// CreateTimerFunc 创建绑定回调函数的定时器.
func (pq *PassiveQueue) CreateTimerFunc(fn func(now clock.Instant) ExpireResult) (*FuncTimer, error) {
	return pq.queue.CreateTimerFunc(fn)
}

// Queue 返回底层 TimerQueue.
func (pq *PassiveQueue) Queue() *TimerQueue {
	return pq.queue
}

// Close 关闭队列.
func (pq *PassiveQueue) Close() {
	pq.queue.Close()
}

// Show 返回队列的调试描述.
func (pq *PassiveQueue) Show(level int) string {
	s := "passive timer queue\n"
	if level >= 1 {
		s += pq.queue.Show(level - 1)
	}
	return s
}
