// SPDX-FileCopyrightText: 2019, 2020 Alvar Penning
// SPDX-FileCopyrightText: 2024 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package id_keeper hands out message IDs correlating queries with their replies.
//
// Replies are claimed by ID alone, so IDs are unique per node: one counter serves
// every return route and is never reset.
package id_keeper

import (
	"math"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/route"
)

// MaxIdle is the time after which an unused return route is forgotten by Clean.
const MaxIdle = time.Hour

type usage struct {
	lastID   uint64
	lastUsed time.Time
}

// IdKeeper issues message IDs and remembers which return routes asked for them.
type IdKeeper struct {
	last   uint64
	routes map[string]*usage
	mutex  sync.Mutex
	now    func() time.Time
}

func NewIdKeeper() *IdKeeper {
	return &IdKeeper{
		routes: make(map[string]*usage),
		now:    time.Now,
	}
}

// Next returns the next message ID for a query answered via returnRoute. IDs start
// at 1; 0 marks a message without ID and is never handed out.
func (idk *IdKeeper) Next(returnRoute route.Route) uint64 {
	key := returnRoute.String()

	idk.mutex.Lock()
	defer idk.mutex.Unlock()

	if idk.last == math.MaxUint64 {
		log.Warn("Message ID sequence wrapped")
		idk.last = 0
	}
	idk.last++

	state, ok := idk.routes[key]
	if !ok {
		state = &usage{}
		idk.routes[key] = state
	}
	state.lastID = idk.last
	state.lastUsed = idk.now()
	return idk.last
}

// LastID returns the ID most recently issued for returnRoute.
func (idk *IdKeeper) LastID(returnRoute route.Route) (uint64, bool) {
	idk.mutex.Lock()
	defer idk.mutex.Unlock()

	state, ok := idk.routes[returnRoute.String()]
	if !ok {
		return 0, false
	}
	return state.lastID, true
}

// Len returns the number of tracked return routes.
func (idk *IdKeeper) Len() int {
	idk.mutex.Lock()
	defer idk.mutex.Unlock()
	return len(idk.routes)
}

// Clean forgets return routes which have not been used for MaxIdle. The ID counter
// keeps running.
func (idk *IdKeeper) Clean() {
	idk.mutex.Lock()
	defer idk.mutex.Unlock()

	threshold := idk.now().Add(-MaxIdle)
	for key, state := range idk.routes {
		if state.lastUsed.Before(threshold) {
			delete(idk.routes, key)
		}
	}
}
