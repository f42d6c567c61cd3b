package timerq

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/godyy/gtimerq/clock"
	"github.com/stretchr/testify/require"
)

// newTestQueue 构造由模拟时钟驱动的 PassiveQueue，返回队列、时钟与
// reschedule 计数器.
func newTestQueue(t *testing.T) (*PassiveQueue, *clock.Simulated, *int32) {
	t.Helper()
	sim := clock.NewSimulated(time.Unix(1700000000, 0))
	var rescheds int32
	pq, err := NewPassiveQueue(func() {
		atomic.AddInt32(&rescheds, 1)
	}, nil, WithClock(sim))
	require.NoError(t, err)
	t.Cleanup(pq.Close)
	return pq, sim, &rescheds
}

type countingNotifier struct {
	expires int32
	result  ExpireResult
}

func (n *countingNotifier) Expire(now clock.Instant) ExpireResult {
	atomic.AddInt32(&n.expires, 1)
	return n.result
}

func (n *countingNotifier) count() int32 {
	return atomic.LoadInt32(&n.expires)
}

func TestProcessEmptyQueue(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	_, ok := pq.Process(sim.Now())
	require.False(t, ok, "empty queue must report no deadline")
	require.Equal(t, 0, pq.Queue().PendingCount())
}

func TestStartInPastExpiresOnNextProcess(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	n := &countingNotifier{}
	timer, err := pq.CreateTimer()
	require.NoError(t, err)
	defer timer.Destroy()

	timer.Start(n, sim.Now().Add(-time.Second))
	_, ok := pq.Process(sim.Now())
	require.False(t, ok)
	require.EqualValues(t, 1, n.count())

	active, _ := timer.ExpireInfo()
	require.False(t, active)
}

func TestPendingStateMatchesHeap(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	n := &countingNotifier{}
	var timers []*Timer
	for i := 0; i < 3; i++ {
		timer, err := pq.CreateTimer()
		require.NoError(t, err)
		timer.Start(n, sim.Now().Add(time.Duration(i+1)*time.Second))
		timers = append(timers, timer)
	}
	defer func() {
		for _, timer := range timers {
			timer.Destroy()
		}
	}()

	require.Equal(t, 3, pq.Queue().PendingCount())
	for _, timer := range timers {
		active, at := timer.ExpireInfo()
		require.True(t, active)
		require.False(t, at.IsZero())
	}

	require.True(t, timers[1].Cancel())
	require.Equal(t, 2, pq.Queue().PendingCount())
	active, _ := timers[1].ExpireInfo()
	require.False(t, active)

	// 堆顶是最早到期者.
	delay, ok := pq.Process(sim.Now())
	require.True(t, ok)
	require.Equal(t, time.Second, delay)
}

func TestCancelIdempotent(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	timer, err := pq.CreateTimer()
	require.NoError(t, err)
	defer timer.Destroy()

	timer.Start(&countingNotifier{}, sim.Now().Add(time.Second))

	delay, ok := timer.ExpireDelay()
	require.True(t, ok)
	require.Equal(t, time.Second, delay)

	require.True(t, timer.Cancel())
	require.False(t, timer.Cancel())

	_, ok = timer.ExpireDelay()
	require.False(t, ok)
}

func TestStartCancelRoundTrip(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	anchor, err := pq.CreateTimer()
	require.NoError(t, err)
	defer anchor.Destroy()
	anchor.Start(&countingNotifier{}, sim.Now().Add(time.Minute))

	before := pq.Queue().PendingCount()
	beforeDelay, _ := pq.Process(sim.Now())

	timer, err := pq.CreateTimer()
	require.NoError(t, err)
	defer timer.Destroy()
	timer.Start(&countingNotifier{}, sim.Now().Add(time.Second))
	timer.Cancel()

	require.Equal(t, before, pq.Queue().PendingCount())
	afterDelay, _ := pq.Process(sim.Now())
	require.Equal(t, beforeDelay, afterDelay)
}

func TestStartReturnValueAndReschedule(t *testing.T) {
	pq, sim, rescheds := newTestQueue(t)
	n := &countingNotifier{}

	t1, err := pq.CreateTimer()
	require.NoError(t, err)
	defer t1.Destroy()
	t2, err := pq.CreateTimer()
	require.NoError(t, err)
	defer t2.Destroy()

	// 空堆插入：新晋堆顶，必须唤醒驱动方.
	require.Equal(t, 1, t1.Start(n, sim.Now().Add(2*time.Second)))
	require.EqualValues(t, 1, atomic.LoadInt32(rescheds))

	// 初次启动总是计为 1；更晚的到期不是堆顶，不唤醒.
	require.Equal(t, 1, t2.Start(n, sim.Now().Add(3*time.Second)))
	require.EqualValues(t, 1, atomic.LoadInt32(rescheds))

	// 重新调度到最早：堆顶提前，唤醒.
	require.Equal(t, 1, t2.Start(n, sim.Now().Add(time.Second)))
	require.EqualValues(t, 2, atomic.LoadInt32(rescheds))
}

func TestRestartScheduledFromProcessTime(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	scheduledAt := sim.Now()
	timer, err := pq.CreateTimer()
	require.NoError(t, err)
	defer timer.Destroy()
	timer.Start(&countingNotifier{result: Restart(5 * time.Second)}, scheduledAt)

	// 2 秒后才真正处理到期：重启基于处理时刻，而不是原定到期时刻.
	processAt := sim.Advance(2 * time.Second)
	_, ok := pq.Process(processAt)
	require.True(t, ok)

	active, at := timer.ExpireInfo()
	require.True(t, active)
	require.Equal(t, processAt.Add(5*time.Second), at)
	require.NotEqual(t, scheduledAt.Add(5*time.Second), at)

	timer.Cancel()
}

func TestStartDuringCallbackOverridesRestart(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	timer, err := pq.CreateTimer()
	require.NoError(t, err)
	defer timer.Destroy()

	var override clock.Instant
	n := NotifierFunc(func(now clock.Instant) ExpireResult {
		override = now.Add(10 * time.Second)
		timer.Start(NotifierFunc(func(clock.Instant) ExpireResult {
			return NoRestart()
		}), override)
		return Restart(time.Second)
	})

	timer.Start(n, sim.Now())
	pq.Process(sim.Now())

	active, at := timer.ExpireInfo()
	require.True(t, active)
	require.Equal(t, override, at, "explicit start during callback must win over the returned restart")

	timer.Cancel()
}

func TestCancelDuringOwnCallback(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	timer, err := pq.CreateTimer()
	require.NoError(t, err)
	defer timer.Destroy()

	// 自取消：从回调内部取消不得阻塞，且返回的重启请求被丢弃.
	timer.Start(NotifierFunc(func(clock.Instant) ExpireResult {
		timer.Cancel()
		return Restart(time.Second)
	}), sim.Now())
	_, ok := pq.Process(sim.Now())
	require.False(t, ok)

	active, _ := timer.ExpireInfo()
	require.False(t, active)
}

func TestDestroyFromOwnCallback(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	var destroyed int32
	timer, err := pq.CreateTimer()
	require.NoError(t, err)

	timer.Start(NotifierFunc(func(clock.Instant) ExpireResult {
		timer.Destroy()
		atomic.AddInt32(&destroyed, 1)
		return NoRestart()
	}), sim.Now())

	_, ok := pq.Process(sim.Now())
	require.False(t, ok)
	require.EqualValues(t, 1, atomic.LoadInt32(&destroyed))
	require.Equal(t, 0, pq.Queue().PendingCount())
}

func TestCallbackPanicSwallowed(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	bad, err := pq.CreateTimer()
	require.NoError(t, err)
	defer bad.Destroy()
	good, err := pq.CreateTimer()
	require.NoError(t, err)
	defer good.Destroy()

	n := &countingNotifier{}
	bad.Start(NotifierFunc(func(clock.Instant) ExpireResult {
		panic("notifier boom")
	}), sim.Now())
	good.Start(n, sim.Now())

	// panic 被吸收并视为 NoRestart, 后续到期继续处理.
	_, ok := pq.Process(sim.Now())
	require.False(t, ok)
	require.EqualValues(t, 1, n.count())

	active, _ := bad.ExpireInfo()
	require.False(t, active)
}

func TestConcurrentProcessSingleRunner(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	entered := make(chan struct{})
	release := make(chan struct{})
	var expires int32

	timer, err := pq.CreateTimer()
	require.NoError(t, err)
	defer timer.Destroy()
	timer.Start(NotifierFunc(func(clock.Instant) ExpireResult {
		atomic.AddInt32(&expires, 1)
		close(entered)
		<-release
		return NoRestart()
	}), sim.Now())

	done := make(chan struct{})
	go func() {
		defer close(done)
		pq.Process(sim.Now())
	}()

	<-entered

	// 并发的 Process 调用必须立即返回非负等待时长，而不是执行回调.
	delay, ok := pq.Process(sim.Now())
	require.True(t, ok)
	require.GreaterOrEqual(t, delay, time.Duration(0))
	require.EqualValues(t, 1, atomic.LoadInt32(&expires))

	close(release)
	<-done
	require.EqualValues(t, 1, atomic.LoadInt32(&expires))
}

func TestCloseMarksTimersLimbo(t *testing.T) {
	sim := clock.NewSimulated(time.Unix(1700000000, 0))
	pq, err := NewPassiveQueue(nil, nil, WithClock(sim))
	require.NoError(t, err)

	n := &countingNotifier{}
	t1, err := pq.CreateTimer()
	require.NoError(t, err)
	t2, err := pq.CreateTimer()
	require.NoError(t, err)
	t1.Start(n, sim.Now().Add(time.Second))
	t2.Start(n, sim.Now().Add(2*time.Second))

	pq.Close()

	// 关闭不调用回调，所有定时器回到 Limbo；存储仍归用户所有.
	require.EqualValues(t, 0, n.count())
	active, _ := t1.ExpireInfo()
	require.False(t, active)
	active, _ = t2.ExpireInfo()
	require.False(t, active)

	_, err = pq.CreateTimer()
	require.ErrorIs(t, err, ErrQueueClosed)

	t1.Destroy()
	t2.Destroy()
}

func TestRestartPanicsOnNegativeDelay(t *testing.T) {
	require.Panics(t, func() {
		Restart(-time.Second)
	})
}

func TestShow(t *testing.T) {
	pq, sim, _ := newTestQueue(t)

	timer, err := pq.CreateTimer()
	require.NoError(t, err)
	defer timer.Destroy()
	timer.Start(&countingNotifier{}, sim.Now().Add(time.Second))

	s := pq.Show(2)
	require.Contains(t, s, "1 items pending")
	require.Contains(t, s, "pending")
}
