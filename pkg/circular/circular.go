package circular

import (
	"fmt"
	"sync"
)

/*
 * Data structure implementing a circular buffer.
 *
 * The buffer always holds the most recent Length() values. Values which
 * were never written read as the zero value.
 */
type Buffer[T any] struct {
	mutex   sync.RWMutex
	values  []T
	pointer int
	written uint64
}

/*
 * Add elements to the circular buffer, potentially overwriting unread elements.
 *
 * Semantics: First write to buffer, then increment pointer.
 *
 * Pointer points to "oldest" element, or next element to be overwritten.
 */
func (b *Buffer[T]) Enqueue(elems ...T) {
	numElems := len(elems)
	values := b.values
	n := len(values)

	/*
	 * A zero-sized buffer keeps nothing.
	 */
	if n == 0 {
		return
	}

	b.mutex.Lock()
	defer b.mutex.Unlock()
	b.written += uint64(numElems)

	/*
	 * If there are more elements than fit into the buffer, simply copy
	 * the tail of the element array into the buffer, otherwise perform
	 * circular write operation.
	 */
	if numElems >= n {
		idx := numElems - n
		copy(values, elems[idx:numElems])
		b.pointer = 0
		return
	}

	ptr := b.pointer
	ptrInc := ptr + numElems

	/*
	 * Check whether the write operation stays within the array bounds.
	 */
	if ptrInc < n {
		copy(values[ptr:ptrInc], elems)
		b.pointer = ptrInc
	} else {
		head := ptrInc - n
		tail := n - ptr
		copy(values[ptr:n], elems[0:tail])
		copy(values[0:head], elems[tail:numElems])
		b.pointer = head
	}

}

/*
 * Returns the capacity of the buffer.
 */
func (b *Buffer[T]) Length() int {
	return len(b.values)
}

/*
 * Returns whether every slot of the buffer has been written at least once.
 */
func (b *Buffer[T]) Full() bool {
	b.mutex.RLock()
	defer b.mutex.RUnlock()
	return b.written >= uint64(len(b.values))
}

/*
 * Retrieve all elements from the circular buffer, oldest first.
 */
func (b *Buffer[T]) Retrieve(buf []T) error {
	values := b.values
	n := len(values)
	m := len(buf)

	/*
	 * Ensure the target buffer is of equal size.
	 */
	if n != m {
		return fmt.Errorf("target buffer holds %d elements, circular buffer holds %d", m, n)
	}

	b.mutex.RLock()
	ptr := b.pointer
	tailSize := n - ptr
	copy(buf[0:tailSize], values[ptr:n])
	copy(buf[tailSize:n], values[0:ptr])
	b.mutex.RUnlock()
	return nil
}

/*
 * Forgets all elements.
 */
func (b *Buffer[T]) Reset() {
	var zero T
	b.mutex.Lock()

	for i := range b.values {
		b.values[i] = zero
	}

	b.pointer = 0
	b.written = 0
	b.mutex.Unlock()
}

/*
 * Creates a circular buffer of a certain size.
 */
func CreateBuffer[T any](size int) *Buffer[T] {

	if size < 0 {
		size = 0
	}

	buf := Buffer[T]{
		values: make([]T, size),
	}

	return &buf
}
