// Package history provides fixed-capacity rolling buffers that overwrite their oldest entry.
package history

// Buffer is a ring of at most Cap() values. It is not safe for concurrent use;
// each analyzer owns its own buffers.
type Buffer[T any] struct {
	data  []T
	start int
	size  int
}

// New returns a buffer holding up to capacity values. Capacity <= 0 is coerced to 1.
func New[T any](capacity int) *Buffer[T] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Buffer[T]{data: make([]T, capacity)}
}

// Add appends v, overwriting the oldest value when full.
func (b *Buffer[T]) Add(v T) {
	c := len(b.data)
	if b.size < c {
		b.data[(b.start+b.size)%c] = v
		b.size++
		return
	}
	b.data[b.start] = v
	b.start = (b.start + 1) % c
}

func (b *Buffer[T]) Len() int { return b.size }
func (b *Buffer[T]) Cap() int { return len(b.data) }

// Full reports whether the next Add will overwrite.
func (b *Buffer[T]) Full() bool { return b.size == len(b.data) }

// At returns the i-th oldest value.
func (b *Buffer[T]) At(i int) T {
	return b.data[(b.start+i)%len(b.data)]
}

// Last returns the newest value and false when empty.
func (b *Buffer[T]) Last() (T, bool) {
	var zero T
	if b.size == 0 {
		return zero, false
	}
	return b.At(b.size - 1), true
}

// LastN returns up to k newest values in chronological order as a fresh slice.
func (b *Buffer[T]) LastN(k int) []T {
	if k <= 0 || b.size == 0 {
		return []T{}
	}
	if k > b.size {
		k = b.size
	}
	out := make([]T, k)
	off := b.size - k
	for i := 0; i < k; i++ {
		out[i] = b.At(off + i)
	}
	return out
}

// Values returns every held value, oldest first.
func (b *Buffer[T]) Values() []T { return b.LastN(b.size) }

// Clear drops all values but keeps the capacity.
func (b *Buffer[T]) Clear() {
	var zero T
	for i := range b.data {
		b.data[i] = zero
	}
	b.start, b.size = 0, 0
}
