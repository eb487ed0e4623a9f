// SPDX-License-Identifier: GPL-3.0-or-later

// Package nats_eif connects the bus through a NATS server.
//
// An Interface subscribes to Spec.Address and publishes to Spec.Peer, or to
// Spec.Address as well when no peer subject is given. Every NATS message carries
// raw bytes of the stream, so messages may be split or batched freely.
package nats_eif

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/nats-io/nats.go"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/eif"
)

// Conn is the part of a NATS connection used by this package.
type Conn interface {
	Subscribe(subject string, handler nats.MsgHandler) (*nats.Subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

// subjectChannel is one subscribed and one published subject.
type subjectChannel struct {
	eif.Inbox

	conn         Conn
	subscription *nats.Subscription
	inSubject    string
	outSubject   string
	closed       atomic.Bool
}

func (channel *subjectChannel) receive(msg *nats.Msg) {
	if channel.closed.Load() {
		return
	}
	channel.Push(msg.Data)
}

func (channel *subjectChannel) Write(p []byte) (int, error) {
	if channel.closed.Load() {
		return 0, eif.NewClosedError(channel.Address())
	}
	if err := channel.conn.Publish(channel.outSubject, p); err != nil {
		return 0, err
	}
	return len(p), nil
}

func (channel *subjectChannel) Close() error {
	if channel.closed.Swap(true) {
		return nil
	}
	if channel.subscription != nil {
		return channel.subscription.Unsubscribe()
	}
	return nil
}

func (channel *subjectChannel) Address() string {
	if channel.inSubject == channel.outSubject {
		return fmt.Sprintf("nats://%s", channel.inSubject)
	}
	return fmt.Sprintf("nats://%s,%s", channel.inSubject, channel.outSubject)
}

// Dialer creates the NATS connection on first use.
type Dialer func() (Conn, error)

// URLDialer connects to the NATS server at url.
func URLDialer(url, clientName string) Dialer {
	return func() (Conn, error) {
		conn, err := nats.Connect(url,
			nats.Name(clientName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(2*time.Second),
			nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
				log.WithFields(log.Fields{
					"url":   url,
					"error": err,
				}).Warn("Disconnected from NATS server")
			}),
			nats.ReconnectHandler(func(conn *nats.Conn) {
				log.WithField("url", conn.ConnectedUrl()).Info("Reconnected to NATS server")
			}))
		if err != nil {
			return nil, err
		}
		return conn, nil
	}
}

type Handler struct {
	encoding eif.Encoding

	mutex  *sync.Mutex
	dialer Dialer
	conn   *Conn
}

func (handler *Handler) Connection() eif.ConnectionType {
	return eif.NATS
}

func (handler *Handler) Encoding() eif.Encoding {
	return handler.encoding
}

func (handler *Handler) connect() (Conn, error) {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()

	if *handler.conn != nil {
		return *handler.conn, nil
	}
	conn, err := handler.dialer()
	if err != nil {
		return nil, err
	}
	*handler.conn = conn
	return conn, nil
}

func (handler *Handler) Open(spec eif.Spec) ([]*eif.Interface, error) {
	if spec.Address == "" {
		return nil, fmt.Errorf("NATS interface needs a subject")
	}

	conn, err := handler.connect()
	if err != nil {
		return nil, err
	}

	channel := &subjectChannel{conn: conn, inSubject: spec.Address, outSubject: spec.Peer}
	if channel.outSubject == "" {
		channel.outSubject = spec.Address
	}

	if spec.Read {
		if channel.subscription, err = conn.Subscribe(channel.inSubject, channel.receive); err != nil {
			return nil, err
		}
	}

	log.WithFields(log.Fields{
		"address":  channel.Address(),
		"encoding": handler.encoding,
	}).Info("Opened NATS interface")

	return []*eif.Interface{eif.NewInterface(eif.NATS, handler.encoding, channel, eif.NewParser(handler.encoding), spec.Options()...)}, nil
}

// Close closes the shared NATS connection of both handlers created by Register.
func (handler *Handler) Close() error {
	handler.mutex.Lock()
	defer handler.mutex.Unlock()

	if *handler.conn != nil {
		(*handler.conn).Close()
		*handler.conn = nil
	}
	return nil
}

// Register adds a BMF and a PML NATS handler sharing one connection made by
// dialer, and returns them in that order.
func Register(registry eif.HandlerRegistry, dialer Dialer) (*Handler, *Handler) {
	mutex, conn := &sync.Mutex{}, new(Conn)
	bmfHandler := &Handler{encoding: eif.BMF, mutex: mutex, dialer: dialer, conn: conn}
	pmlHandler := &Handler{encoding: eif.PML, mutex: mutex, dialer: dialer, conn: conn}
	registry.RegisterHandler(bmfHandler)
	registry.RegisterHandler(pmlHandler)
	return bmfHandler, pmlHandler
}
