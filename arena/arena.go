// Package arena 实现按分组私有的批量分配器，用于单个 T 实例的高频
// 分配/回收场景.
//
// 每个分组同一时刻至多持有一个"当前 rack"；分配在快路径上从当前 rack
// 剥离槽位，不触及任何共享锁；rack 耗尽时才触及共享的 RackAllocator 锁.
// Go 没有线程退出析构钩子，分组对当前 rack 的引用由调用方显式通过
// Handle.Close 释放.
package arena

import "sync"

// Config Arena 的配置.
type Config struct {
	// Capacity 每个 Rack 容纳的槽位数量.
	Capacity int

	// Policy Rack 的供给策略，默认 FreeListPolicy.
	Policy RackAllocPolicy
}

func (c *Config) init() error {
	if c == nil {
		return ErrBindFailed
	}
	if c.Capacity <= 0 {
		c.Capacity = defaultCapacity
	}
	return nil
}

const defaultCapacity = 256

// GroupID 分组标识. 各分组独立持有自己的当前 rack，互不竞争.
type GroupID string

// groupState 某个分组当前持有的 rack.
type groupState[T any] struct {
	mu      sync.Mutex
	current *Rack[T]
}

// Arena 是某个具体类型 T 的批量分配器.
type Arena[T any] struct {
	capacity int
	racks    rackAllocator[T]
	groups   sync.Map // GroupID -> *groupState[T]
}

// New 构造一个新的 Arena. 通常每个类型 T 只需要一个进程级单例，
// 调用方负责以合适的方式保存复用（参见 timerq 包中 TimerQueue 对
// Arena[Timer] 的持有方式）.
func New[T any](cfg Config) (*Arena[T], error) {
	if err := cfg.init(); err != nil {
		return nil, err
	}
	return &Arena[T]{
		capacity: cfg.Capacity,
		racks:    newRackAllocator[T](cfg.Policy, cfg.Capacity),
	}, nil
}

// Handle 是某个分组对 Arena 的租约，持有该分组当前打开的 rack.
// 调用方必须在不再分配时调用 Close 来释放其当前 rack 的引用.
type Handle[T any] struct {
	arena *Arena[T]
	group GroupID
}

// Bind 为 groupID 建立（或复用）分配上下文，返回的 Handle 可反复调用
// Alloc 而无需加锁，直到其当前 rack 耗尽.
func (a *Arena[T]) Bind(groupID GroupID) (Handle[T], error) {
	if a == nil {
		return Handle[T]{}, ErrBindFailed
	}
	a.groups.LoadOrStore(groupID, &groupState[T]{})
	return Handle[T]{arena: a, group: groupID}, nil
}

func (a *Arena[T]) groupStateFor(g GroupID) *groupState[T] {
	v, _ := a.groups.LoadOrStore(g, &groupState[T]{})
	return v.(*groupState[T])
}

// Alloc 剥离一个槽位. 快路径（当前 rack 未耗尽）完全不涉及共享锁；
// 慢路径（当前 rack 为空或已耗尽）会调用 RackAllocator，触及其内部锁.
func (h Handle[T]) Alloc() (*T, error) {
	gs := h.arena.groupStateFor(h.group)
	gs.mu.Lock()
	defer gs.mu.Unlock()

	if gs.current != nil {
		p, ok := gs.current.alloc()
		if ok {
			if gs.current.full() {
				r := gs.current
				gs.current = nil
				if r.removeReference() == 0 {
					h.arena.racks.destroy(r)
				}
			}
			return p, nil
		}
		// 当前 rack 已耗尽却未被清理，属于内部不变式被破坏.
		return nil, ErrRackExhausted
	}

	r := h.arena.racks.create()
	r.addReference() // 分组持有这个 rack 期间自身的引用
	p, ok := r.alloc()
	if !ok {
		return nil, ErrBindFailed
	}
	if r.full() {
		if r.removeReference() == 0 {
			h.arena.racks.destroy(r)
		}
	} else {
		gs.current = r
	}
	return p, nil
}

// Close 释放分组当前持有的 rack 引用（若有）. 分组不再分配时必须调用，
// 否则其当前 rack 永远不会被回收.
func (h Handle[T]) Close() {
	gs := h.arena.groupStateFor(h.group)
	gs.mu.Lock()
	r := gs.current
	gs.current = nil
	gs.mu.Unlock()

	if r != nil && r.removeReference() == 0 {
		h.arena.racks.destroy(r)
	}
}

// Free 释放单个对象，定位其所属 rack 并递减引用计数；
// 引用计数归零时将 rack 归还给 RackAllocator.
func (a *Arena[T]) Free(p *T) {
	if p == nil {
		return
	}
	r := rackOf(p)
	if r.removeReference() == 0 {
		a.racks.destroy(r)
	}
}

// Stats 进程级统计，用于验证配额测试性质 5：静息时 rack 数与字节数归零.
type Stats struct {
	RackCount int64
	ByteCount int64
}

// Stats 返回该 Arena 当前的统计信息.
func (a *Arena[T]) Stats() Stats {
	return Stats{
		RackCount: a.racks.RackCount(),
		ByteCount: a.racks.ByteCount(),
	}
}
