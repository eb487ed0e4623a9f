// SPDX-License-Identifier: GPL-3.0-or-later

package messages

import (
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/message"
	"github.com/dtn7/bmfbus/pkg/route"
)

// ErrorVariable receives Error messages. Without a handler they are logged with a
// level derived from their priority.
type ErrorVariable struct {
	handlers []func(source route.Target, err Error)
}

func (variable *ErrorVariable) ID() uint32 {
	return VariableID(ErrorCode)
}

func (variable *ErrorVariable) Name() string {
	return "errors"
}

// OnError adds a handler called for every received Error.
func (variable *ErrorVariable) OnError(handler func(source route.Target, err Error)) {
	variable.handlers = append(variable.handlers, handler)
}

func (variable *ErrorVariable) Receive(source route.Target, payload Error) {
	if len(variable.handlers) == 0 {
		LogError(source, payload)
		return
	}
	for _, handler := range variable.handlers {
		handler(source, payload)
	}
}

// LogError logs a received Error; higher priorities log at higher levels.
func LogError(source route.Target, payload Error) {
	entry := log.WithFields(log.Fields{
		"source":   source,
		"priority": payload.Priority,
		"error_id": payload.ErrorID,
	})

	switch {
	case payload.Priority >= 8:
		entry.Error(payload.Text)
	case payload.Priority >= 5:
		entry.Warn(payload.Text)
	case payload.Priority >= 2:
		entry.Info(payload.Text)
	default:
		entry.Debug(payload.Text)
	}
}

// ErrorRouteVariable holds the destination of locally reported errors. Like every
// variable it is only touched from the processing goroutine.
type ErrorRouteVariable struct {
	minPriority uint64
	errorRoute  route.Route
}

func (variable *ErrorRouteVariable) ID() uint32 {
	return VariableID(SetErrorRouteCode)
}

func (variable *ErrorRouteVariable) Name() string {
	return "error_route"
}

func (variable *ErrorRouteVariable) Receive(source route.Target, payload SetErrorRoute) {
	variable.Set(payload.MinPriority, payload.ErrorRoute)
	log.WithFields(log.Fields{
		"source":       source,
		"min_priority": payload.MinPriority,
		"route":        payload.ErrorRoute,
	}).Info("Error route changed")
}

// Set stores the route and the minimum priority of reported errors. An empty route
// disables reporting.
func (variable *ErrorRouteVariable) Set(minPriority uint64, errorRoute route.Route) {
	variable.minPriority = minPriority
	variable.errorRoute = errorRoute.Clone()
}

func (variable *ErrorRouteVariable) HasErrorRoute() bool {
	return !variable.errorRoute.Arrived()
}

func (variable *ErrorRouteVariable) Get() (uint64, route.Route) {
	return variable.minPriority, variable.errorRoute.Clone()
}

// ErrorReporter sends local errors along the configured error route.
type ErrorReporter struct {
	manager *message.Manager[Error]
	route   *ErrorRouteVariable
}

// Report sends an Error if an error route is set and priority reaches its minimum.
// It returns whether the Error was sent.
func (reporter *ErrorReporter) Report(priority, errorID uint64, text string) (bool, error) {
	minPriority, errorRoute := reporter.route.Get()
	if errorRoute.Arrived() || priority < minPriority {
		return false, nil
	}

	err := reporter.manager.Send(route.NewRemote(errorRoute, 0), Error{Priority: priority, ErrorID: errorID, Text: text})
	return err == nil, err
}
