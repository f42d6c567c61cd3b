package timerq

import "sync"

// queueRegistry 共享 ActiveQueue 注册表：按优先级复用队列并做引用计数，
// 避免每个调用方各起一个定时器 goroutine.
type queueRegistry struct {
	mu     sync.Mutex
	shared []*ActiveQueue
}

var (
	registryOnce sync.Once
	registryInst *queueRegistry
)

// registry 返回进程级注册表单例.
func registry() *queueRegistry {
	registryOnce.Do(func() {
		registryInst = &queueRegistry{}
	})
	return registryInst
}

// AllocateActiveQueue 获取 ActiveQueue. okToShare 为真且已有同优先级的
// 共享队列时，复用它并递增引用计数；否则新建引用计数为 1 的队列，
// okToShare 为真时登记为共享. 用完必须调用 Release 归还.
func AllocateActiveQueue(okToShare bool, priority int, options ...Option) (*ActiveQueue, error) {
	return registry().allocate(okToShare, priority, options...)
}

func (r *queueRegistry) allocate(okToShare bool, priority int, options ...Option) (*ActiveQueue, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if okToShare {
		for _, aq := range r.shared {
			if aq.priority == priority {
				aq.refCount++
				return aq, nil
			}
		}
	}

	aq, err := newActiveQueue(okToShare, priority, options...)
	if err != nil {
		return nil, err
	}
	aq.refCount = 1
	if okToShare {
		r.shared = append(r.shared, aq)
	}
	return aq, nil
}

// release 引用计数递减；归零时注销（若为共享队列）并销毁.
func (r *queueRegistry) release(aq *ActiveQueue) {
	r.mu.Lock()
	if aq.refCount <= 0 {
		r.mu.Unlock()
		panic("timerq: release of unallocated active queue")
	}
	aq.refCount--
	if aq.refCount > 0 {
		r.mu.Unlock()
		return
	}
	if aq.sharingOK() {
		for i, q := range r.shared {
			if q == aq {
				r.shared = append(r.shared[:i], r.shared[i+1:]...)
				break
			}
		}
	}
	r.mu.Unlock()

	// 释放注册表锁之后再销毁，销毁会等待工作 goroutine 退出.
	aq.close()
}
