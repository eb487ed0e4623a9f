// SPDX-FileCopyrightText: 2020 Alvar Penning
// SPDX-FileCopyrightText: 2023 Markus Sommer
//
// SPDX-License-Identifier: GPL-3.0-or-later

package discovery

import (
	"fmt"
	"math"

	"github.com/dtn7/bmfbus/pkg/bmf"
	"github.com/dtn7/bmfbus/pkg/eif"
)

const (
	address4 = "224.23.23.23"
	address6 = "ff02::23"
	port     = 35040
)

// Announcement advertises one listening interface of a node.
type Announcement struct {
	Node       string
	Connection eif.ConnectionType
	Encoding   eif.Encoding
	Port       uint16
}

func (announcement Announcement) String() string {
	return fmt.Sprintf("%s/%v/%v:%d", announcement.Node, announcement.Connection, announcement.Encoding, announcement.Port)
}

// MarshalAnnouncements encodes announcements as one BMF message: their count
// followed by node, connection type, encoding and port of each.
func MarshalAnnouncements(announcements []Announcement) ([]byte, error) {
	buf := bmf.NewMessageBuffer()
	buf.PutUnsigned(uint64(len(announcements)))
	for _, announcement := range announcements {
		if err := buf.PutString(announcement.Node); err != nil {
			return nil, err
		}
		buf.PutUnsigned(uint64(announcement.Connection))
		buf.PutUnsigned(uint64(announcement.Encoding))
		buf.PutUnsigned(uint64(announcement.Port))
	}
	buf.PutEnd()
	return append([]byte(nil), buf.Bytes()...), nil
}

// UnmarshalAnnouncements decodes a message created by MarshalAnnouncements.
func UnmarshalAnnouncements(data []byte) ([]Announcement, error) {
	cur := bmf.NewCursor(data)
	count, err := cur.Unsigned()
	if err != nil {
		return nil, err
	}
	if count > uint64(len(data)) {
		return nil, fmt.Errorf("announcement count %d exceeds message size", count)
	}

	announcements := make([]Announcement, 0, count)
	for i := uint64(0); i < count; i++ {
		var announcement Announcement
		if announcement.Node, err = cur.Text(); err != nil {
			return nil, err
		}

		connection, err := cur.Unsigned()
		if err != nil {
			return nil, err
		}
		announcement.Connection = eif.ConnectionType(connection)
		if err := announcement.Connection.CheckValid(); err != nil {
			return nil, err
		}

		encoding, err := cur.Unsigned()
		if err != nil {
			return nil, err
		}
		announcement.Encoding = eif.Encoding(encoding)
		if announcement.Encoding != eif.BMF && announcement.Encoding != eif.PML {
			return nil, eif.NewUnknownEncodingError(announcement.Encoding.String())
		}

		p, err := cur.Unsigned()
		if err != nil {
			return nil, err
		}
		if p > math.MaxUint16 {
			return nil, fmt.Errorf("announced port %d out of range", p)
		}
		announcement.Port = uint16(p)

		announcements = append(announcements, announcement)
	}

	if !cur.IsFinished() {
		return nil, fmt.Errorf("trailing data after %d announcements", count)
	}
	return announcements, nil
}
