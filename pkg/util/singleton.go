// SPDX-FileCopyrightText: 2023 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package util provides miscellaneous types and functions which may be useful in multiple places.
package util

import (
	"fmt"
	"sync"

	log "github.com/sirupsen/logrus"
)

type AlreadyInitialised string

func (err *AlreadyInitialised) Error() string {
	return fmt.Sprintf("%s was already initialised", string(*err))
}

func NewAlreadyInitialisedError(name string) *AlreadyInitialised {
	err := AlreadyInitialised(name)
	return &err
}

// Singleton holds the process-wide instance of a component, such as the journal or
// the agent manager.
type Singleton[T any] struct {
	name     string
	mutex    sync.RWMutex
	instance *T
}

func NewSingleton[T any](name string) *Singleton[T] {
	return &Singleton[T]{name: name}
}

// Set installs instance. It returns an AlreadyInitialised error if one is installed.
func (singleton *Singleton[T]) Set(instance *T) error {
	singleton.mutex.Lock()
	defer singleton.mutex.Unlock()

	if singleton.instance != nil {
		return NewAlreadyInitialisedError(singleton.name)
	}
	singleton.instance = instance
	return nil
}

// Get returns the installed instance. Calling it before Set is a programming error and panics.
func (singleton *Singleton[T]) Get() *T {
	singleton.mutex.RLock()
	defer singleton.mutex.RUnlock()

	if singleton.instance == nil {
		log.WithField("singleton", singleton.name).Panic("Attempting to access an uninitialised singleton")
	}
	return singleton.instance
}

// Initialised reports whether an instance is installed.
func (singleton *Singleton[T]) Initialised() bool {
	singleton.mutex.RLock()
	defer singleton.mutex.RUnlock()

	return singleton.instance != nil
}

// Release removes instance if it is the installed one.
func (singleton *Singleton[T]) Release(instance *T) {
	singleton.mutex.Lock()
	defer singleton.mutex.Unlock()

	if singleton.instance == instance {
		singleton.instance = nil
	}
}
