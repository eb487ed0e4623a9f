// SPDX-FileCopyrightText: 2025 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package application_agent

import (
	"sort"
	"sync"

	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/messages"
	"github.com/dtn7/bmfbus/pkg/route"
	"github.com/dtn7/bmfbus/pkg/util"
)

type Manager struct {
	stateMutex sync.RWMutex
	agents     map[string]ApplicationAgent
	inboxes    *MailboxBank
}

var managerSingleton = util.NewSingleton[Manager]("Application Agent Manager")

// InitialiseApplicationAgentManager creates the manager singleton.
// Further calls before Shutdown return a util.AlreadyInitialised-error.
func InitialiseApplicationAgentManager() error {
	manager := Manager{
		agents:  make(map[string]ApplicationAgent),
		inboxes: NewMailboxBank(),
	}
	return managerSingleton.Set(&manager)
}

// GetManagerSingleton returns the manager singleton-instance.
// Attempting to call this function before initialisation will cause the program to panic.
func GetManagerSingleton() *Manager {
	return managerSingleton.Get()
}

func (manager *Manager) Shutdown() {
	managerSingleton.Release(manager)

	manager.stateMutex.Lock()
	defer manager.stateMutex.Unlock()

	for agentName, agent := range manager.agents {
		delete(manager.agents, agentName)
		agent.Shutdown()
	}
}

// Agents returns the names of all registered agents in lexical order.
func (manager *Manager) Agents() []string {
	manager.stateMutex.RLock()
	defer manager.stateMutex.RUnlock()

	names := make([]string, 0, len(manager.agents))
	for name := range manager.agents {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// RegisterAgent registers and starts a new ApplicationAgent.
// If an agent with the same name is already registered, then method returns an AgentAlreadyRegisteredError
// If the agent's startup fails, the resulting error will be returned, and the agent will NOT be registered.
func (manager *Manager) RegisterAgent(newAgent ApplicationAgent) error {
	manager.stateMutex.Lock()
	defer manager.stateMutex.Unlock()

	agentName := newAgent.Name()

	if _, ok := manager.agents[agentName]; ok {
		return NewAgentAlreadyRegisteredError(agentName)
	}

	err := newAgent.Start()
	if err != nil {
		return err
	}

	manager.agents[agentName] = newAgent
	log.WithField("agent", agentName).Info("Registered application agent")

	return nil
}

// UnregisterAgent stops an application agent and removes it from the manager.
// If no agent with the given name is registered, then method returns a NoSuchAgentError.
func (manager *Manager) UnregisterAgent(agentName string) error {
	manager.stateMutex.Lock()
	defer manager.stateMutex.Unlock()

	agent, ok := manager.agents[agentName]
	if !ok {
		return NewNoSuchAgentError(agentName)
	}

	delete(manager.agents, agentName)
	agent.Shutdown()

	return nil
}

// Inboxes holds the mailboxes of clients subscribed to Error messages.
func (manager *Manager) Inboxes() *MailboxBank {
	return manager.inboxes
}

// Delivery hands an Error message which arrived at this node to every subscribed inbox.
// It is registered with messages.ErrorVariable.OnError and runs on the processing goroutine.
func (manager *Manager) Delivery(source route.Target, errorMessage messages.Error) {
	delivered := manager.inboxes.Deliver(ReceivedError{Source: source, Error: errorMessage})
	log.WithFields(log.Fields{
		"source":    source,
		"error_id":  errorMessage.ErrorID,
		"delivered": delivered,
	}).Debug("Delivered error message to inboxes")
}
