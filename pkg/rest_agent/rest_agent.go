// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2023, 2025 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package rest_agent provides a RESTful inspection surface of a running bus.
//
// All responses are JSON objects carrying an "error" field, which is empty on
// success. The request and response types are described in `messages.go`.
//
// A possible conversation follows as an example.
//
//	// 1. List the open interfaces, GET /ports
//	// <- {"error":"","ports":[{"port":0,"connection":"Socket","encoding":"BMF",...}]}
//
//	// 2. Send an Error message out of port 0, POST to /error
//	// -> {"port":0,"priority":5,"error_id":42,"text":"disk full"}
//	// <- {"error":""}
//
//	// 3. Inspect the messages journaled for port 0, GET /journal/0?payload=1
//	// <- {"error":"","records":[{"id":"cn6...","encoding":"BMF","type":"Error",...}]}
//
// Prometheus metrics are exported at /metrics.
package rest_agent

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/metrics"
	"github.com/dtn7/bmfbus/pkg/processing"
	"github.com/dtn7/bmfbus/pkg/route"
)

type RestAgent struct {
	router        *mux.Router
	listenAddress string
	server        *http.Server

	core *processing.Core
}

func NewRestAgent(prefix, listenAddress string, core *processing.Core) (ra *RestAgent) {
	r := mux.NewRouter()
	restRouter := r.PathPrefix(prefix).Subrouter()

	ra = &RestAgent{
		router:        r,
		listenAddress: listenAddress,
		core:          core,
	}

	restRouter.HandleFunc("/ports", ra.handlePorts).Methods(http.MethodGet)
	restRouter.HandleFunc("/handlers", ra.handleHandlers).Methods(http.MethodGet)
	restRouter.HandleFunc("/types", ra.handleTypes).Methods(http.MethodGet)
	restRouter.HandleFunc("/error", ra.handleError).Methods(http.MethodPost)
	restRouter.HandleFunc("/open", ra.handleOpen).Methods(http.MethodPost)
	restRouter.HandleFunc("/journal/{port:[0-9]+}", ra.handleJournal).Methods(http.MethodGet)
	restRouter.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	return ra
}

func (ra *RestAgent) Name() string {
	return fmt.Sprintf("RestAgent(%v)", ra.listenAddress)
}

func (ra *RestAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ra.router.ServeHTTP(w, r)
}

func (ra *RestAgent) Start() error {
	ra.server = &http.Server{
		Addr:              ra.listenAddress,
		Handler:           ra.router,
		ReadHeaderTimeout: 60 * time.Second,
	}

	go func() {
		if err := ra.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithFields(log.Fields{
				"agent": ra.Name(),
				"error": err,
			}).Error("REST agent stopped serving")
		}
	}()

	return nil
}

func (ra *RestAgent) Shutdown() {
	if ra.server == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := ra.server.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Failed to shut down REST agent")
	}
}

func writeJSON(w http.ResponseWriter, response any, name string) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		log.WithError(err).Warnf("Failed to write REST %s response", name)
	}
}

// handlePorts lists the open interfaces, called by GET /ports.
func (ra *RestAgent) handlePorts(w http.ResponseWriter, _ *http.Request) {
	response := RestPortsResponse{Ports: []RestPort{}}

	if err := ra.core.Do(func(c *processing.Core) {
		c.Director.ForEach(func(iface *eif.Interface) {
			opts := iface.Options()
			response.Ports = append(response.Ports, RestPort{
				Port:       iface.Port(),
				Connection: iface.Connection().String(),
				Encoding:   iface.Encoding().String(),
				Address:    iface.Address(),
				Read:       opts.Read,
				Write:      opts.Write,
				Logging:    opts.Logging,
				Pending:    iface.Pending(),
			})
		})
	}); err != nil {
		response.Error = err.Error()
	}

	writeJSON(w, response, "ports")
}

// handleHandlers lists the registered handlers, called by GET /handlers.
func (ra *RestAgent) handleHandlers(w http.ResponseWriter, _ *http.Request) {
	response := RestHandlersResponse{Handlers: []RestHandler{}}

	if err := ra.core.Do(func(c *processing.Core) {
		for _, handler := range c.Director.Handlers() {
			response.Handlers = append(response.Handlers, RestHandler{
				Connection: handler.Connection().String(),
				Encoding:   handler.Encoding().String(),
			})
		}
	}); err != nil {
		response.Error = err.Error()
	}

	writeJSON(w, response, "handlers")
}

// handleTypes describes every registered message type, called by GET /types.
func (ra *RestAgent) handleTypes(w http.ResponseWriter, _ *http.Request) {
	var response RestTypesResponse

	if err := ra.core.Do(func(c *processing.Core) {
		response.Types = c.Registry.Types()
	}); err != nil {
		response.Error = err.Error()
	}

	writeJSON(w, response, "types")
}

func (request RestErrorRequest) target() (route.Target, error) {
	selectors := 0
	for _, set := range []bool{request.Broadcast, request.Route != "", request.Port != nil} {
		if set {
			selectors++
		}
	}
	if selectors != 1 {
		return route.Target{}, fmt.Errorf("exactly one of broadcast, route and port must be given")
	}

	switch {
	case request.Broadcast:
		target := route.NewBroadcast()
		target.VariableID = request.Variable
		return target, nil
	case request.Port != nil:
		return route.NewPort(*request.Port, request.Variable), nil
	default:
		r, err := route.Parse(request.Route)
		if err != nil {
			return route.Target{}, err
		}
		return route.NewRemote(r, request.Variable), nil
	}
}

// handleError sends an Error message, called by POST /error.
func (ra *RestAgent) handleError(w http.ResponseWriter, r *http.Request) {
	var (
		errorRequest  RestErrorRequest
		errorResponse RestErrorResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&errorRequest); jsonErr != nil {
		log.WithError(jsonErr).Warn("Failed to parse REST error request")
		errorResponse.Error = jsonErr.Error()
	} else if target, targetErr := errorRequest.target(); targetErr != nil {
		errorResponse.Error = targetErr.Error()
	} else {
		var sendErr error
		if doErr := ra.core.Do(func(c *processing.Core) {
			sendErr = c.Builtins.SendError(target, errorRequest.Priority, errorRequest.ErrorID, errorRequest.Text)
		}); doErr != nil {
			sendErr = doErr
		}

		log.WithFields(log.Fields{
			"target":   target,
			"priority": errorRequest.Priority,
			"error_id": errorRequest.ErrorID,
			"error":    sendErr,
		}).Info("REST client sent error message")

		if sendErr != nil {
			errorResponse.Error = sendErr.Error()
		}
	}

	writeJSON(w, errorResponse, "error")
}

// handleOpen opens interfaces through a registered handler, called by POST /open.
func (ra *RestAgent) handleOpen(w http.ResponseWriter, r *http.Request) {
	var (
		openRequest  RestOpenRequest
		openResponse RestOpenResponse
	)

	if jsonErr := json.NewDecoder(r.Body).Decode(&openRequest); jsonErr != nil {
		log.WithError(jsonErr).Warn("Failed to parse REST open request")
		openResponse.Error = jsonErr.Error()
	} else if connection, err := eif.ConnectionTypeFromString(openRequest.Connection); err != nil {
		openResponse.Error = err.Error()
	} else if encoding, err := eif.EncodingFromString(openRequest.Encoding); err != nil {
		openResponse.Error = err.Error()
	} else {
		spec := eif.Spec{
			Address: openRequest.Address,
			Peer:    openRequest.Peer,
			Read:    openRequest.Read,
			Write:   openRequest.Write,
			Listen:  openRequest.Listen,
			Logging: openRequest.Logging,
			Instant: true,
		}
		if ports, err := ra.core.Open(connection, encoding, spec); err != nil {
			openResponse.Error = err.Error()
		} else {
			openResponse.Ports = ports
		}
	}

	writeJSON(w, openResponse, "open")
}

// handleJournal lists the messages journaled for a port, called by GET /journal/{port}.
// The payloads are included if the "payload" query parameter is set.
func (ra *RestAgent) handleJournal(w http.ResponseWriter, r *http.Request) {
	response := RestJournalResponse{Records: []RestRecord{}}

	port, err := strconv.ParseUint(mux.Vars(r)["port"], 10, 32)
	if err != nil {
		response.Error = err.Error()
		writeJSON(w, response, "journal")
		return
	}

	journal := ra.core.Journal
	if journal == nil {
		response.Error = "journal is disabled"
		writeJSON(w, response, "journal")
		return
	}

	withPayload := r.URL.Query().Get("payload") != ""

	records, err := journal.ListByPort(uint32(port))
	if err != nil {
		response.Error = err.Error()
	}
	for i := range records {
		record := RestRecord{
			ID:       records[i].ID,
			Encoding: records[i].Encoding,
			Type:     records[i].Type,
			Received: records[i].Received.Format(time.RFC3339Nano),
			Checksum: records[i].Checksum,
		}
		if withPayload {
			if payload, loadErr := journal.Load(&records[i]); loadErr != nil {
				log.WithFields(log.Fields{
					"record": records[i].ID,
					"error":  loadErr,
				}).Warn("Failed to load journaled message")
			} else {
				record.Payload = payload
			}
		}
		response.Records = append(response.Records, record)
	}

	writeJSON(w, response, "journal")
}
