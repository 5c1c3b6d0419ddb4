package session

// history keeps the newest max items. max <= 0 keeps nothing.
type history[T any] struct {
	items []T
	max   int
}

func newHistory[T any](max int) *history[T] {
	return &history[T]{max: max}
}

func (h *history[T]) add(item T) {
	if h.max <= 0 {
		return
	}
	if len(h.items) >= h.max {
		n := copy(h.items, h.items[len(h.items)-h.max+1:])
		h.items = h.items[:n]
	}
	h.items = append(h.items, item)
}

func (h *history[T]) reset() {
	h.items = h.items[:0]
}

func (h *history[T]) snapshot() []T {
	out := make([]T, len(h.items))
	copy(out, h.items)
	return out
}
