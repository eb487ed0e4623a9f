package application_agent

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/bmfbus/pkg/messages"
	"github.com/dtn7/bmfbus/pkg/route"
	"github.com/dtn7/bmfbus/pkg/util"
)

type stubAgent struct {
	name     string
	startErr error
	started  bool
	stopped  bool
}

func (agent *stubAgent) Name() string { return agent.name }

func (agent *stubAgent) Start() error {
	agent.started = agent.startErr == nil
	return agent.startErr
}

func (agent *stubAgent) Shutdown() { agent.stopped = true }

func initManagerTest(t *testing.T) *Manager {
	require.NoError(t, InitialiseApplicationAgentManager())
	manager := GetManagerSingleton()
	t.Cleanup(manager.Shutdown)
	return manager
}

func TestManagerRegisterAgent(t *testing.T) {
	manager := initManagerTest(t)

	rest := &stubAgent{name: "rest"}
	require.NoError(t, manager.RegisterAgent(rest))
	assert.True(t, rest.started)

	var already *AgentAlreadyRegisteredError
	assert.True(t, errors.As(manager.RegisterAgent(&stubAgent{name: "rest"}), &already))

	broken := &stubAgent{name: "unix", startErr: errors.New("address in use")}
	assert.Error(t, manager.RegisterAgent(broken))
	assert.Equal(t, []string{"rest"}, manager.Agents())

	require.NoError(t, manager.UnregisterAgent("rest"))
	assert.True(t, rest.stopped)

	var noSuch *NoSuchAgentError
	assert.True(t, errors.As(manager.UnregisterAgent("rest"), &noSuch))
}

func TestManagerInitialiseTwice(t *testing.T) {
	initManagerTest(t)

	var already *util.AlreadyInitialised
	assert.True(t, errors.As(InitialiseApplicationAgentManager(), &already))
}

func TestManagerShutdownStopsAgents(t *testing.T) {
	require.NoError(t, InitialiseApplicationAgentManager())
	manager := GetManagerSingleton()

	agent := &stubAgent{name: "rest"}
	require.NoError(t, manager.RegisterAgent(agent))
	manager.Shutdown()

	assert.True(t, agent.stopped)
	assert.Empty(t, manager.Agents())
	assert.Panics(t, func() { GetManagerSingleton() })
}

func TestManagerDelivery(t *testing.T) {
	manager := initManagerTest(t)
	require.NoError(t, manager.Inboxes().Register("client", 0))

	manager.Delivery(route.NewArrived(2), messages.Error{Priority: 5, ErrorID: 42, Text: "disk full"})

	mailbox, err := manager.Inboxes().GetMailbox("client")
	require.NoError(t, err)
	msgs := mailbox.GetNew(true)
	require.Len(t, msgs, 1)
	assert.Equal(t, messages.Error{Priority: 5, ErrorID: 42, Text: "disk full"}, msgs[0].Error)
	assert.Equal(t, uint32(2), msgs[0].Source.Port)
	assert.False(t, msgs[0].Received.IsZero())
}
