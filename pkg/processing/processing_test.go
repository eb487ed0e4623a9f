package processing

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/eif/dummy_eif"
	"github.com/dtn7/bmfbus/pkg/messages"
	"github.com/dtn7/bmfbus/pkg/route"
)

func startCore(t *testing.T) *Core {
	core := NewCore("", nil)
	core.Start()
	t.Cleanup(func() {
		_ = core.Stop()
	})
	return core
}

func TestCoreDeliversInjectedError(t *testing.T) {
	core := startCore(t)
	bmfHandler, _ := dummy_eif.Register(core)

	var mutex sync.Mutex
	var received []messages.Error
	require.NoError(t, core.Do(func(c *Core) {
		c.Builtins.Errors.OnError(func(_ route.Target, err messages.Error) {
			mutex.Lock()
			defer mutex.Unlock()
			received = append(received, err)
		})
	}))

	ports, err := core.Open(eif.Dummy, eif.BMF, eif.Spec{Address: "sensor", Read: true, Write: true, Instant: true})
	require.NoError(t, err)
	require.Len(t, ports, 1)

	data, err := core.Builtins.Error.EncodeBMF(route.NewPort(0, 0), messages.Error{Priority: 5, ErrorID: 42, Text: "disk full"}, false)
	require.NoError(t, err)

	far, ok := bmfHandler.Peer("sensor")
	require.True(t, ok)
	_, err = far.Write(data)
	require.NoError(t, err)

	live, err := core.Tick()
	require.NoError(t, err)
	assert.True(t, live)

	mutex.Lock()
	defer mutex.Unlock()
	require.Len(t, received, 1)
	assert.Equal(t, messages.Error{Priority: 5, ErrorID: 42, Text: "disk full"}, received[0])
}

func TestCoreSerialisesTasks(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		core := NewCore("", nil)
		core.Start()
		defer core.Stop()

		n := rapid.IntRange(1, 200).Draw(t, "tasks")
		counter := 0

		var wg sync.WaitGroup
		for i := 0; i < n; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_ = core.Do(func(*Core) { counter++ })
			}()
		}
		wg.Wait()

		if err := core.Do(func(*Core) {
			if counter != n {
				t.Fatalf("Expected %d increments, got %d", n, counter)
			}
		}); err != nil {
			t.Fatal(err)
		}
	})
}

func TestCoreAdopt(t *testing.T) {
	core := startCore(t)

	near, _ := dummy_eif.NewPipePair("accepted", "remote")
	core.Adopt(dummy_eif.NewInterface(eif.PML, near))

	var ports []uint32
	require.NoError(t, core.Do(func(c *Core) {
		ports = c.Director.Ports()
	}))
	assert.Equal(t, []uint32{0}, ports)
}

func TestCoreStopped(t *testing.T) {
	core := NewCore(messages.DefaultNumberType, nil)
	core.Start()
	require.NoError(t, core.Stop())
	require.NoError(t, core.Stop())

	err := core.Do(func(*Core) {})
	assert.IsType(t, &StoppedError{}, err)
	assert.False(t, core.Submit(func(*Core) {}))

	_, err = core.Tick()
	assert.Error(t, err)
}

func TestCoreShutdownClosesInterfaces(t *testing.T) {
	core := NewCore("", nil)
	core.Start()

	near, far := dummy_eif.NewPipePair("a", "b")
	core.Adopt(dummy_eif.NewInterface(eif.BMF, near))
	require.NoError(t, core.Do(func(*Core) {}))

	require.NoError(t, core.Stop())

	_, err := far.Poll(make([]byte, 8))
	assert.Error(t, err)
}
