// SPDX-License-Identifier: GPL-3.0-or-later

// Package metrics holds the prometheus collectors of the bus on a private registry.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "bmfbus"

// Message outcomes used as the "outcome" label of Messages.
const (
	Delivered  = "delivered"
	Dropped    = "dropped"
	Forwarded  = "forwarded"
	Translated = "translated"
	Sent       = "sent"
)

var (
	// Registry is exposed by the REST agent under /metrics.
	Registry = prometheus.NewRegistry()

	Interfaces = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "director",
		Name:      "interfaces",
		Help:      "Number of live external interfaces",
	})

	InterfacesOpened = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "director",
		Name:      "interfaces_opened_total",
		Help:      "External interfaces added, by connection type and encoding",
	}, []string{"connection", "encoding"})

	Messages = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "message",
		Name:      "messages_total",
		Help:      "Messages handled, by type and outcome",
	}, []string{"type", "outcome"})

	Unknown = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "message",
		Name:      "unknown_total",
		Help:      "Inbound messages of an unregistered type, by encoding",
	}, []string{"encoding"})

	JournalRecords = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "journal",
		Name:      "records",
		Help:      "Records held by the message journal",
	})
)

func init() {
	Registry.MustRegister(
		Interfaces,
		InterfacesOpened,
		Messages,
		Unknown,
		JournalRecords,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
}

// CountMessage increments the counter for the given message type and outcome.
func CountMessage(typeName, outcome string) {
	Messages.WithLabelValues(typeName, outcome).Inc()
}
