// SPDX-FileCopyrightText: 2020, 2022, 2023 Markus Sommer
// SPDX-FileCopyrightText: 2020, 2021 Alvar Penning
//
// SPDX-License-Identifier: GPL-3.0-or-later

// Package discovery announces listening interfaces via UDP multicast and reports
// the interfaces announced by other nodes.
package discovery

import (
	"fmt"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/schollz/peerdiscovery"
)

// RegisterFunc is called once for every newly discovered peer interface.
type RegisterFunc func(announcement Announcement, address string)

// DiscoveryManager publishes and receives Announcements.
type DiscoveryManager struct {
	NodeID       string
	RegisterFunc RegisterFunc `json:"-"`

	known sync.Map // address[string] -> Announcement

	stopChan4 chan struct{}
	stopChan6 chan struct{}
}

func newManager(nodeID string, registerFunc RegisterFunc) *DiscoveryManager {
	return &DiscoveryManager{
		NodeID:       nodeID,
		RegisterFunc: registerFunc,
	}
}

// InitialiseManager starts announcing and listening on the selected IP versions.
func InitialiseManager(
	nodeID string, registerFunc RegisterFunc,
	announcements []Announcement, announcementInterval time.Duration,
	ipv4, ipv6 bool) (*DiscoveryManager, error) {

	manager := newManager(nodeID, registerFunc)
	if ipv4 {
		manager.stopChan4 = make(chan struct{})
	}
	if ipv6 {
		manager.stopChan6 = make(chan struct{})
	}

	log.WithFields(log.Fields{
		"interval":      announcementInterval,
		"IPv4":          ipv4,
		"IPv6":          ipv6,
		"announcements": announcements,
	}).Info("Starting discovery manager")

	msg, err := MarshalAnnouncements(announcements)
	if err != nil {
		return nil, err
	}

	sets := []struct {
		active           bool
		multicastAddress string
		stopChan         chan struct{}
		ipVersion        peerdiscovery.IPVersion
		notify           func(discovered peerdiscovery.Discovered)
	}{
		{ipv4, address4, manager.stopChan4, peerdiscovery.IPv4, manager.notify},
		{ipv6, address6, manager.stopChan6, peerdiscovery.IPv6, manager.notify6},
	}

	for _, set := range sets {
		if !set.active {
			continue
		}

		settings := peerdiscovery.Settings{
			Limit:            -1,
			Port:             fmt.Sprintf("%d", port),
			MulticastAddress: set.multicastAddress,
			Payload:          msg,
			Delay:            announcementInterval,
			TimeLimit:        -1,
			StopChan:         set.stopChan,
			AllowSelf:        true,
			IPVersion:        set.ipVersion,
			Notify:           set.notify,
		}

		discoverErrChan := make(chan error, 1)
		go func() {
			_, discoverErr := peerdiscovery.Discover(settings)
			discoverErrChan <- discoverErr
		}()

		select {
		case discoverErr := <-discoverErrChan:
			if discoverErr != nil {
				log.WithField("error", discoverErr).Error("Discovery error")
				return nil, discoverErr
			}

		case <-time.After(time.Second):
		}
	}

	return manager, nil
}

func (manager *DiscoveryManager) notify6(discovered peerdiscovery.Discovered) {
	discovered.Address = fmt.Sprintf("[%s]", discovered.Address)

	manager.notify(discovered)
}

func (manager *DiscoveryManager) notify(discovered peerdiscovery.Discovered) {
	announcements, err := UnmarshalAnnouncements(discovered.Payload)
	if err != nil {
		log.WithError(err).WithFields(log.Fields{
			"discovery": manager,
			"peer":      discovered.Address,
		}).Warn("Peer discovery failed to parse incoming package")

		return
	}

	for _, announcement := range announcements {
		manager.handleDiscovery(announcement, discovered.Address)
	}
}

func (manager *DiscoveryManager) handleDiscovery(announcement Announcement, addr string) {
	if announcement.Node == manager.NodeID {
		return
	}

	address := fmt.Sprintf("%s:%d", addr, announcement.Port)
	if _, loaded := manager.known.LoadOrStore(address, announcement); loaded {
		return
	}

	log.WithFields(log.Fields{
		"discovery": manager,
		"peer":      address,
		"message":   announcement,
	}).Debug("Peer discovery received a new announcement")

	go manager.RegisterFunc(announcement, address)
}

// Forget drops a peer address, so that its next announcement is reported again.
func (manager *DiscoveryManager) Forget(address string) {
	manager.known.Delete(address)
}

// Close this Manager.
func (manager *DiscoveryManager) Close() {
	for _, c := range []chan struct{}{manager.stopChan4, manager.stopChan6} {
		if c != nil {
			c <- struct{}{}
		}
	}
}

func (manager *DiscoveryManager) String() string {
	return fmt.Sprintf("Manager(%v)", manager.NodeID)
}
