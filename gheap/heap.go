// Package gheap 在 github.com/godyy/gutils/container/heap 之上包一层
// 极薄的外壳，把定时器队列需要的最小接口（按到期时间排序、就地修复、
// 取堆顶、按缓存索引删除）固定下来，避免 timerq 包直接依赖第三方包的
// 内部类型名. 堆本身的实现（二叉堆 + 元素自带堆索引缓存）完全复用
// gutils/container/heap，不重新实现.
package gheap

import (
	"github.com/godyy/gutils/container/heap"
)

// Item 是可以放入 Heap 的元素约束，与 gutils/container/heap 的
// HeapLess/HeapIndex/SetHeapIndex 契约一致：HeapIndex 由堆在插入/
// 移动/删除时维护，调用方只需要保证零值为 -1 的专属字段即可.
type Item[T any] interface {
	HeapLess(other T) bool
	HeapIndex() int
	SetHeapIndex(index int)
}

// Heap 是按 HeapLess 排序的最小堆，元素自带堆索引缓存，删除/修复均为
// O(log n) 而不需要线性扫描.
type Heap[T Item[T]] struct {
	h *heap.Heap[T]
}

// New 构造一个空堆.
func New[T Item[T]]() *Heap[T] {
	return &Heap[T]{h: heap.NewHeap[T]()}
}

// Push 插入一个元素.
func (h *Heap[T]) Push(v T) {
	h.h.Push(v)
}

// Remove 按缓存的堆索引移除元素，index 必须是该元素当前的 HeapIndex().
func (h *Heap[T]) Remove(index int) {
	h.h.Remove(index)
}

// Fix 在元素的排序键发生变化后重新恢复堆序，index 为其当前 HeapIndex().
func (h *Heap[T]) Fix(index int) {
	h.h.Fix(index)
}

// Top 返回堆顶元素（最先到期者），堆为空时返回零值和 false.
func (h *Heap[T]) Top() (v T, ok bool) {
	if h.h.Len() == 0 {
		return v, false
	}
	return h.h.Top(), true
}

// Len 返回堆中元素数量.
func (h *Heap[T]) Len() int {
	return h.h.Len()
}
