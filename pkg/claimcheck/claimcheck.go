// SPDX-License-Identifier: GPL-3.0-or-later

// Package claimcheck provides remove-on-read maps correlating replies with the
// queries that asked for them.
//
// The maps are not safe for concurrent use; they live on the processing goroutine.
package claimcheck

import (
	log "github.com/sirupsen/logrus"
)

// Map stores one value per key. A value can be claimed exactly once.
type Map[K comparable, V any] struct {
	entries map[K]V
}

func NewMap[K comparable, V any]() *Map[K, V] {
	return &Map[K, V]{entries: make(map[K]V)}
}

// Put stores value under key, replacing an unclaimed older value.
func (m *Map[K, V]) Put(key K, value V) {
	if _, ok := m.entries[key]; ok {
		log.WithField("key", key).Warn("Replacing unclaimed value")
	}
	m.entries[key] = value
}

// Claim returns and removes the value stored under key.
func (m *Map[K, V]) Claim(key K) (V, bool) {
	value, ok := m.entries[key]
	if ok {
		delete(m.entries, key)
	}
	return value, ok
}

// Peek returns the value stored under key without claiming it.
func (m *Map[K, V]) Peek(key K) (V, bool) {
	value, ok := m.entries[key]
	return value, ok
}

// Pending lists the keys of all unclaimed values.
func (m *Map[K, V]) Pending() []K {
	keys := make([]K, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	return keys
}

func (m *Map[K, V]) Len() int {
	return len(m.entries)
}

func (m *Map[K, V]) Clear() {
	clear(m.entries)
}

// MultiMap stores any number of values per key; Claim hands them out oldest first.
type MultiMap[K comparable, V any] struct {
	entries map[K][]V
}

func NewMultiMap[K comparable, V any]() *MultiMap[K, V] {
	return &MultiMap[K, V]{entries: make(map[K][]V)}
}

// Put appends value to the values stored under key.
func (m *MultiMap[K, V]) Put(key K, value V) {
	m.entries[key] = append(m.entries[key], value)
}

// Claim removes and returns the oldest value stored under key. The key disappears
// with its last value.
func (m *MultiMap[K, V]) Claim(key K) (V, bool) {
	values, ok := m.entries[key]
	if !ok {
		var zero V
		return zero, false
	}

	value := values[0]
	if len(values) == 1 {
		delete(m.entries, key)
	} else {
		m.entries[key] = values[1:]
	}
	return value, true
}

// ClaimAll removes and returns every value stored under key.
func (m *MultiMap[K, V]) ClaimAll(key K) []V {
	values := m.entries[key]
	delete(m.entries, key)
	return values
}

// Count returns the number of values stored under key.
func (m *MultiMap[K, V]) Count(key K) int {
	return len(m.entries[key])
}

// Pending lists the keys with unclaimed values.
func (m *MultiMap[K, V]) Pending() []K {
	keys := make([]K, 0, len(m.entries))
	for key := range m.entries {
		keys = append(keys, key)
	}
	return keys
}

// Len returns the number of keys with unclaimed values.
func (m *MultiMap[K, V]) Len() int {
	return len(m.entries)
}
