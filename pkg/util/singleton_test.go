package util

import (
	"errors"
	"testing"
)

type component struct {
	id int
}

func TestSingleton(t *testing.T) {
	singleton := NewSingleton[component]("Component")
	if singleton.Initialised() {
		t.Fatal("Fresh singleton is initialised")
	}

	first := &component{id: 1}
	if err := singleton.Set(first); err != nil {
		t.Fatal(err)
	}
	if got := singleton.Get(); got != first {
		t.Fatalf("Get returned %v", got)
	}

	err := singleton.Set(&component{id: 2})
	var already *AlreadyInitialised
	if !errors.As(err, &already) {
		t.Fatalf("Second Set returned %v", err)
	}

	singleton.Release(&component{id: 1})
	if !singleton.Initialised() {
		t.Fatal("Releasing a different instance cleared the singleton")
	}

	singleton.Release(first)
	if singleton.Initialised() {
		t.Fatal("Release did not clear the singleton")
	}
}

func TestSingletonGetPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Get on an empty singleton did not panic")
		}
	}()
	NewSingleton[component]("Component").Get()
}
