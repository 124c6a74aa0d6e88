// Package batch splits slices of parsed records into size-bounded chunks
// for bulk insert, mirroring the teacher's size/count-bounded splitter but
// generalized from SQL-statement splitting to record-count batching: WSPR
// records have no script-size concern, only a row-count ceiling per batch.
// The BatchLoader's batch_size accumulation uses Accumulator; the Ingester's
// max_spots_per_insert / max_noise_per_insert splitting is done by its own
// helpers in internal/ingester, not by Split.
package batch

// Split divides items into chunks of at most size items each. size <= 0
// returns a single chunk containing everything.
func Split[T any](items []T, size int) [][]T {
	if len(items) == 0 {
		return nil
	}
	if size <= 0 {
		return [][]T{items}
	}

	var chunks [][]T
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}

// Accumulator collects items across many calls (e.g. across successive tbz
// members inside a BatchLoader tar). Add yields the buffered batch once the
// configured size is reached, and Flush yields whatever remains, matching the
// BatchLoader's cross-bundle
// accumulation described in SPEC_FULL.md §4.3.
type Accumulator[T any] struct {
	size  int
	items []T
}

// NewAccumulator creates an accumulator that flushes at size items.
func NewAccumulator[T any](size int) *Accumulator[T] {
	return &Accumulator[T]{size: size}
}

// Add appends items and returns a ready-to-insert batch if the accumulator
// has reached its configured size, clearing its internal buffer in that case.
func (a *Accumulator[T]) Add(items ...T) ([]T, bool) {
	a.items = append(a.items, items...)
	if a.size > 0 && len(a.items) >= a.size {
		batch := a.items
		a.items = nil
		return batch, true
	}
	return nil, false
}

// Flush returns and clears any remaining buffered items, regardless of size.
// Called at end-of-tar to emit a final partial batch.
func (a *Accumulator[T]) Flush() []T {
	if len(a.items) == 0 {
		return nil
	}
	batch := a.items
	a.items = nil
	return batch
}

// Len reports the number of currently buffered items.
func (a *Accumulator[T]) Len() int {
	return len(a.items)
}
