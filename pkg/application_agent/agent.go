package application_agent

// ApplicationAgent is a local control surface of the bus, e.g. the REST or UNIX agent.
type ApplicationAgent interface {
	// Name identifies the agent within the Manager.
	Name() string

	Start() error

	Shutdown()
}
