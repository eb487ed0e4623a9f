// SPDX-License-Identifier: GPL-3.0-or-later

// Package store implements the message journal.
//
// Every inbound message may be journaled. A Record's metadata is kept in a
// badgerhold database while the message itself is serialised into its own file.
// The journal holds at most maxRecords entries; GC drops the oldest beyond that.
package store

import (
	"os"
	"path/filepath"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"github.com/timshannon/badgerhold/v4"

	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/metrics"
	"github.com/dtn7/bmfbus/pkg/util"
)

type Store struct {
	metadataStore   *badgerhold.Store
	recordDirectory string
	maxRecords      uint64
}

var storeSingleton = util.NewSingleton[Store]("Store")

// InitialiseStore opens or creates the journal at path.
// maxRecords of 0 disables the size limit.
func InitialiseStore(path string, maxRecords uint64) error {
	if storeSingleton.Initialised() {
		return util.NewAlreadyInitialisedError("Store")
	}

	store, err := OpenStore(path, maxRecords)
	if err != nil {
		return err
	}
	if err := storeSingleton.Set(store); err != nil {
		return multierror.Append(err, store.metadataStore.Close())
	}
	return nil
}

// GetStoreSingleton returns the journal opened by InitialiseStore.
// It panics if InitialiseStore was not called before.
func GetStoreSingleton() *Store {
	return storeSingleton.Get()
}

// OpenStore opens a journal without touching the singleton.
func OpenStore(path string, maxRecords uint64) (*Store, error) {
	opts := badgerhold.DefaultOptions
	opts.Dir = path
	opts.ValueDir = path
	opts.Logger = nil

	if err := os.MkdirAll(path, 0700); err != nil {
		return nil, err
	}

	badgerStore, err := badgerhold.Open(opts)
	if err != nil {
		return nil, err
	}

	recordDirectory := filepath.Join(path, "records")
	if err := os.MkdirAll(recordDirectory, 0700); err != nil {
		return nil, multierror.Append(err, badgerStore.Close())
	}

	store := &Store{metadataStore: badgerStore, recordDirectory: recordDirectory, maxRecords: maxRecords}
	store.updateGauge()
	return store, nil
}

// Close closes the database. If this is the singleton, it is reset.
func (store *Store) Close() error {
	storeSingleton.Release(store)
	return store.metadataStore.Close()
}

// Capacity is the maximum number of records kept after GC; 0 means unlimited.
func (store *Store) Capacity() uint64 {
	return store.maxRecords
}

// Record journals an inbound message.
func (store *Store) Record(port uint32, encoding eif.Encoding, typeName string, payload []byte) error {
	_, err := store.Insert(port, encoding, typeName, payload)
	return err
}

// Insert stores payload and returns its Record.
func (store *Store) Insert(port uint32, encoding eif.Encoding, typeName string, payload []byte) (*Record, error) {
	id := xid.New().String()
	record := Record{
		ID:                 id,
		Port:               port,
		Encoding:           encoding.String(),
		Type:               typeName,
		Received:           time.Now(),
		Checksum:           checksum(payload),
		Size:               len(payload),
		SerialisedFileName: filepath.Join(store.recordDirectory, id),
	}

	log.WithFields(log.Fields{
		"record": id,
		"port":   port,
		"type":   typeName,
	}).Debug("Journaling message")

	if err := store.metadataStore.Insert(record.ID, record); err != nil {
		return nil, err
	}

	file := &recordFile{port: port, typeName: typeName, payload: payload}
	if err := writeRecordFile(record.SerialisedFileName, file); err != nil {
		log.WithFields(log.Fields{
			"record": id,
			"error":  err,
		}).Error("Error writing serialised message. Deleting...")
		if delErr := store.Delete(&record); delErr != nil {
			log.WithFields(log.Fields{
				"record": id,
				"error":  delErr,
			}).Error("Error deleting Record. Something is very wrong")
			err = multierror.Append(err, delErr)
		}
		return nil, err
	}

	store.updateGauge()
	return &record, nil
}

// Get returns the Record with the given id.
func (store *Store) Get(id string) (*Record, error) {
	record := Record{}
	if err := store.metadataStore.Get(id, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Load reads the journaled message and verifies its checksum.
func (store *Store) Load(record *Record) ([]byte, error) {
	file, err := readRecordFile(record.SerialisedFileName)
	if err != nil {
		return nil, err
	}

	if file.port != record.Port || file.typeName != record.Type {
		return nil, NewCorruptRecordError("record file does not match its metadata")
	}
	if sum := checksum(file.payload); sum != record.Checksum {
		return nil, NewChecksumMismatchError(record.ID, record.Checksum, sum)
	}
	return file.payload, nil
}

// List returns all records, oldest first.
func (store *Store) List() ([]Record, error) {
	var records []Record
	err := store.metadataStore.Find(&records, (&badgerhold.Query{}).SortBy("Received", "ID"))
	return records, err
}

// ListByPort returns the records received on port, oldest first.
func (store *Store) ListByPort(port uint32) ([]Record, error) {
	var records []Record
	err := store.metadataStore.Find(&records, badgerhold.Where("Port").Eq(port).Index("Port").SortBy("Received", "ID"))
	return records, err
}

// Count returns the number of journaled records.
func (store *Store) Count() (uint64, error) {
	return store.metadataStore.Count(&Record{}, nil)
}

// Delete removes a record and its file.
func (store *Store) Delete(record *Record) error {
	var result error
	if err := store.metadataStore.Delete(record.ID, Record{}); err != nil && err != badgerhold.ErrNotFound {
		result = multierror.Append(result, err)
	}
	if err := os.Remove(record.SerialisedFileName); err != nil && !os.IsNotExist(err) {
		result = multierror.Append(result, err)
	}
	return result
}

// GC drops the oldest records exceeding the capacity and returns how many were removed.
func (store *Store) GC() (int, error) {
	if store.maxRecords == 0 {
		return 0, nil
	}

	count, err := store.Count()
	if err != nil {
		return 0, err
	}
	if count <= store.maxRecords {
		return 0, nil
	}

	var stale []Record
	query := (&badgerhold.Query{}).SortBy("Received", "ID").Limit(int(count - store.maxRecords))
	if err := store.metadataStore.Find(&stale, query); err != nil {
		return 0, err
	}

	var result error
	removed := 0
	for i := range stale {
		if err := store.Delete(&stale[i]); err != nil {
			result = multierror.Append(result, err)
			continue
		}
		removed++
	}

	log.WithFields(log.Fields{
		"removed":  removed,
		"capacity": store.maxRecords,
	}).Debug("Journal garbage collection")

	store.updateGauge()
	return removed, result
}

func (store *Store) updateGauge() {
	if count, err := store.Count(); err == nil {
		metrics.JournalRecords.Set(float64(count))
	}
}
