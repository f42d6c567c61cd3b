package timerq

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRegistrySharedByPriority(t *testing.T) {
	q1, err := AllocateActiveQueue(true, 7)
	require.NoError(t, err)
	q2, err := AllocateActiveQueue(true, 7)
	require.NoError(t, err)
	require.Same(t, q1, q2, "same priority shared queues must be multiplexed")

	q3, err := AllocateActiveQueue(true, 8)
	require.NoError(t, err)
	require.NotSame(t, q1, q3, "different priorities get different queues")

	q3.Release()
	q2.Release()

	// q1 仍持有一个引用，工作 goroutine 不应退出.
	select {
	case <-q1.cExited:
		t.Fatal("shared queue terminated while still referenced")
	case <-time.After(50 * time.Millisecond):
	}

	q1.Release()
	select {
	case <-q1.cExited:
	case <-time.After(time.Second):
		t.Fatal("queue worker did not exit after final release")
	}
}

func TestRegistryPrivateQueues(t *testing.T) {
	q1, err := AllocateActiveQueue(false, 7)
	require.NoError(t, err)
	q2, err := AllocateActiveQueue(false, 7)
	require.NoError(t, err)
	require.NotSame(t, q1, q2, "private queues are never shared")

	q1.Release()
	q2.Release()
}

func TestReleaseWithoutReferencePanics(t *testing.T) {
	q, err := AllocateActiveQueue(false, 3)
	require.NoError(t, err)
	q.Release()
	require.Panics(t, func() { q.Release() })
}
