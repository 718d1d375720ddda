package circular

/*
 * Cuts a stream of arbitrarily sized writes into blocks of a fixed size.
 *
 * A framer is not safe for concurrent use. It is meant to live inside a
 * single audio callback.
 */
type Framer[T any] struct {
	block []T
	fill  int
}

/*
 * Creates a framer emitting blocks of the given size.
 */
func CreateFramer[T any](size int) *Framer[T] {

	if size < 1 {
		size = 1
	}

	f := Framer[T]{
		block: make([]T, size),
	}

	return &f
}

/*
 * Returns the block size.
 */
func (f *Framer[T]) Size() int {
	return len(f.block)
}

/*
 * Returns the number of samples waiting for the current block to fill up.
 */
func (f *Framer[T]) Pending() int {
	return f.fill
}

/*
 * Appends elements and calls emit once for every completed block.
 *
 * The slice handed to emit is reused by the framer; emit must copy it if
 * it keeps it beyond the call.
 */
func (f *Framer[T]) Write(elems []T, emit func(block []T)) {
	size := len(f.block)

	for len(elems) > 0 {
		n := copy(f.block[f.fill:], elems)
		f.fill += n
		elems = elems[n:]

		/*
		 * Hand out the block as soon as it is complete.
		 */
		if f.fill == size {
			emit(f.block)
			f.fill = 0
		}

	}

}

/*
 * Pads the partial block with zero values and emits it. Does nothing when
 * no samples are pending.
 */
func (f *Framer[T]) Flush(emit func(block []T)) {
	var zero T

	if f.fill == 0 {
		return
	}

	for i := f.fill; i < len(f.block); i++ {
		f.block[i] = zero
	}

	emit(f.block)
	f.fill = 0
}
