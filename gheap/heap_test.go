package gheap

import "testing"

type intItem struct {
	v   int
	idx int
}

func (a *intItem) HeapLess(b *intItem) bool  { return a.v < b.v }
func (a *intItem) HeapIndex() int            { return a.idx }
func (a *intItem) SetHeapIndex(index int)    { a.idx = index }

func TestHeapOrdering(t *testing.T) {
	h := New[*intItem]()
	for _, v := range []int{5, 3, 8, 1, 4} {
		h.Push(&intItem{v: v, idx: -1})
	}

	var got []int
	for h.Len() > 0 {
		top, ok := h.Top()
		if !ok {
			t.Fatalf("expected Top to succeed while Len() > 0")
		}
		got = append(got, top.v)
		h.Remove(top.HeapIndex())
	}

	want := []int{1, 3, 4, 5, 8}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestHeapFixAfterKeyChange(t *testing.T) {
	h := New[*intItem]()
	a := &intItem{v: 10, idx: -1}
	b := &intItem{v: 20, idx: -1}
	h.Push(a)
	h.Push(b)

	top, _ := h.Top()
	if top != a {
		t.Fatalf("expected a to be on top before mutation")
	}

	a.v = 30
	h.Fix(a.HeapIndex())

	top, _ = h.Top()
	if top != b {
		t.Fatalf("expected b to be on top after a's key increased")
	}
}

func TestHeapEmptyTop(t *testing.T) {
	h := New[*intItem]()
	if _, ok := h.Top(); ok {
		t.Fatalf("expected Top to report ok=false on empty heap")
	}
}
