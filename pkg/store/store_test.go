package store

import (
	"bytes"
	"os"
	"testing"

	"pgregory.net/rapid"

	"github.com/dtn7/bmfbus/pkg/eif"
)

const testPath = "/tmp/bmfbus-journal-test"

func initTest(t interface{ Fatal(args ...any) }, capacity uint64) {
	if err := InitialiseStore(testPath, capacity); err != nil {
		t.Fatal(err)
	}
}

func cleanupTest(t interface{ Fatal(args ...any) }) {
	if err := GetStoreSingleton().Close(); err != nil {
		t.Fatal(err)
	}
	if err := os.RemoveAll(testPath); err != nil {
		t.Fatal(err)
	}
}

func TestRecordInsertion(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initTest(t, 0)
		defer cleanupTest(t)

		port := rapid.Uint32().Draw(t, "port")
		encoding := rapid.SampledFrom(eif.Encodings).Draw(t, "encoding")
		typeName := rapid.StringMatching(`[a-zA-Z][a-zA-Z0-9]{0,15}`).Draw(t, "type")
		payload := rapid.SliceOf(rapid.Byte()).Draw(t, "payload")

		record, err := GetStoreSingleton().Insert(port, encoding, typeName, payload)
		if err != nil {
			t.Fatal(err)
		}

		loaded, err := GetStoreSingleton().Get(record.ID)
		if err != nil {
			t.Fatal(err)
		}
		if loaded.Port != port || loaded.Type != typeName || loaded.Encoding != encoding.String() {
			t.Fatalf("Retrieved Record differs: %+v vs %+v", loaded, record)
		}
		if loaded.Checksum != record.Checksum || loaded.Size != len(payload) {
			t.Fatalf("Retrieved Record has wrong checksum or size: %+v", loaded)
		}
		if !loaded.Received.Equal(record.Received) {
			t.Fatalf("Received differs: %v vs %v", loaded.Received, record.Received)
		}

		data, err := GetStoreSingleton().Load(loaded)
		if err != nil {
			t.Fatal(err)
		}
		if !bytes.Equal(data, payload) {
			t.Fatalf("Loaded payload differs: %x vs %x", data, payload)
		}
	})
}

func TestAlreadyInitialised(t *testing.T) {
	initTest(t, 0)
	defer cleanupTest(t)

	if err := InitialiseStore(testPath, 0); err == nil {
		t.Fatal("Second initialisation did not fail")
	}
}

func TestChecksumMismatch(t *testing.T) {
	initTest(t, 0)
	defer cleanupTest(t)

	record, err := GetStoreSingleton().Insert(3, eif.BMF, "error", []byte{0x03, 0x85, 0x02, 0x00})
	if err != nil {
		t.Fatal(err)
	}

	record.Checksum ^= 0xffff
	if _, err := GetStoreSingleton().Load(record); err == nil {
		t.Fatal("Tampered checksum was accepted")
	} else if _, ok := err.(*ChecksumMismatchError); !ok {
		t.Fatalf("Expected ChecksumMismatchError, got %T: %v", err, err)
	}
}

func TestListByPort(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		initTest(t, 0)
		defer cleanupTest(t)

		ports := rapid.SliceOfN(rapid.Uint32Range(0, 3), 1, 20).Draw(t, "ports")
		expected := make(map[uint32]int)
		for _, port := range ports {
			if err := GetStoreSingleton().Record(port, eif.PML, "queryLog", []byte("<queryLog/>")); err != nil {
				t.Fatal(err)
			}
			expected[port]++
		}

		for port := uint32(0); port <= 3; port++ {
			records, err := GetStoreSingleton().ListByPort(port)
			if err != nil {
				t.Fatal(err)
			}
			if len(records) != expected[port] {
				t.Fatalf("Port %d: expected %d records, got %d", port, expected[port], len(records))
			}
			for _, record := range records {
				if record.Port != port {
					t.Fatalf("Record of port %d listed for port %d", record.Port, port)
				}
			}
		}

		count, err := GetStoreSingleton().Count()
		if err != nil {
			t.Fatal(err)
		}
		if count != uint64(len(ports)) {
			t.Fatalf("Expected %d records, counted %d", len(ports), count)
		}
	})
}

func TestGC(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		capacity := rapid.Uint64Range(1, 8).Draw(t, "capacity")
		n := rapid.IntRange(0, 16).Draw(t, "records")

		initTest(t, capacity)
		defer cleanupTest(t)

		inserted := make([]*Record, 0, n)
		for i := 0; i < n; i++ {
			record, err := GetStoreSingleton().Insert(uint32(i), eif.BMF, "error", []byte{byte(i)})
			if err != nil {
				t.Fatal(err)
			}
			inserted = append(inserted, record)
		}

		removed, err := GetStoreSingleton().GC()
		if err != nil {
			t.Fatal(err)
		}

		expectedRemoved := 0
		if uint64(n) > capacity {
			expectedRemoved = n - int(capacity)
		}
		if removed != expectedRemoved {
			t.Fatalf("Expected %d removed records, got %d", expectedRemoved, removed)
		}

		for i, record := range inserted {
			_, err := GetStoreSingleton().Get(record.ID)
			if i < expectedRemoved && err == nil {
				t.Fatalf("Record %d should have been collected", i)
			} else if i >= expectedRemoved && err != nil {
				t.Fatalf("Record %d was collected: %v", i, err)
			}
		}
	})
}
