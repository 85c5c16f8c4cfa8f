// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package history maintains bounded per-entity rings of recent match
// results for trend and behavioral strategies.
package history

// ringBuffer is a fixed-size circular buffer.
//
// # Description
//
// O(1) push with bounded memory. When full, the oldest item is
// overwritten (FIFO eviction).
//
// # Thread Safety
//
// NOT safe for concurrent use; Tracker synchronizes per entity.
type ringBuffer[T any] struct {
	data  []T
	head  int // Next write position
	tail  int // First element position
	count int
	cap   int
	full  bool
}

// newRingBuffer creates a ring buffer with the given capacity.
func newRingBuffer[T any](capacity int) *ringBuffer[T] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &ringBuffer[T]{
		data: make([]T, capacity),
		cap:  capacity,
	}
}

// push adds an item, overwriting the oldest when full.
func (r *ringBuffer[T]) push(item T) {
	r.data[r.head] = item
	r.head = (r.head + 1) % r.cap

	if r.full {
		r.tail = (r.tail + 1) % r.cap
	} else {
		r.count++
		if r.count == r.cap {
			r.full = true
		}
	}
}

// slice returns all items oldest to newest. The result is a copy.
func (r *ringBuffer[T]) slice() []T {
	if r.count == 0 {
		return nil
	}

	result := make([]T, r.count)
	if r.full {
		n := copy(result, r.data[r.tail:])
		copy(result[n:], r.data[:r.head])
	} else {
		copy(result, r.data[r.tail:r.tail+r.count])
	}
	return result
}

// len returns the number of stored items.
func (r *ringBuffer[T]) len() int {
	return r.count
}
