package main

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dtn7/bmfbus/pkg/eif"
)

const sampleConfig = `
[node]
id = "pump-station"
number_type = "int32"
log_level = "debug"

[journal]
path = "/var/lib/bmfd"
max_records = 100

[cron]
poll = "5ms"
gc = "30s"

[rest]
address = "localhost:8080"

[unix]
socket = "/run/bmfd.sock"

[discovery]
ipv4 = true
interval = "2s"

[nats]
url = "nats://localhost:4222"

[[interface]]
connection = "socket"
encoding = "bmf"
address = ":35037"
listen = true

[[interface]]
connection = "file"
encoding = "pml"
address = "/var/log/bus.pml"
read = false
logging = true
instant = false

[[interface]]
connection = "nats"
encoding = "bmf"
address = "bus.in"
peer = "bus.out"
max_per_poll = 4
`

func decode(t *testing.T, text string) (config, error) {
	var tomlConf tomlConfig
	_, err := toml.Decode(text, &tomlConf)
	require.NoError(t, err)
	return fromToml(tomlConf)
}

func TestParseSample(t *testing.T) {
	conf, err := decode(t, sampleConfig)
	require.NoError(t, err)

	assert.Equal(t, nodeConfig{ID: "pump-station", NumberType: "int32", LogLevel: log.DebugLevel}, conf.Node)
	assert.Equal(t, journalConfig{Path: "/var/lib/bmfd", MaxRecords: 100}, conf.Journal)
	assert.Equal(t, cronConfig{Poll: 5 * time.Millisecond, GC: 30 * time.Second}, conf.Cron)
	assert.Equal(t, "localhost:8080", conf.REST.Address)
	assert.Equal(t, "/run/bmfd.sock", conf.UNIX.Socket)
	assert.Equal(t, discoveryConfig{IPv4: true, Interval: 2 * time.Second}, conf.Discovery)
	assert.Equal(t, "nats://localhost:4222", conf.NATS.URL)

	require.Len(t, conf.Interfaces, 3)
	assert.Equal(t, interfaceConfig{
		Connection: eif.Socket,
		Encoding:   eif.BMF,
		Spec:       eif.Spec{Address: ":35037", Read: true, Write: true, Listen: true, Instant: true},
	}, conf.Interfaces[0])
	assert.Equal(t, interfaceConfig{
		Connection: eif.File,
		Encoding:   eif.PML,
		Spec:       eif.Spec{Address: "/var/log/bus.pml", Write: true, Logging: true},
	}, conf.Interfaces[1])
	assert.Equal(t, interfaceConfig{
		Connection: eif.NATS,
		Encoding:   eif.BMF,
		Spec:       eif.Spec{Address: "bus.in", Peer: "bus.out", Read: true, Write: true, Instant: true, MaxPerPoll: 4},
	}, conf.Interfaces[2])

	assert.Equal(t, []announcementSource{{encoding: eif.BMF, port: 35037}}, announcements(conf))
}

func TestParseDefaults(t *testing.T) {
	conf, err := decode(t, `
[[interface]]
connection = "serial"
address = "/dev/ttyUSB0"
`)
	require.NoError(t, err)

	assert.Equal(t, defaultNumberType, conf.Node.NumberType)
	assert.Equal(t, log.InfoLevel, conf.Node.LogLevel)
	assert.Equal(t, uint64(defaultMaxRecords), conf.Journal.MaxRecords)
	assert.Equal(t, cronConfig{Poll: defaultPoll, GC: defaultGC}, conf.Cron)
	require.Len(t, conf.Interfaces, 1)
	assert.Equal(t, eif.NoEncoding, conf.Interfaces[0].Encoding)
}

func TestParseErrors(t *testing.T) {
	for name, text := range map[string]string{
		"log level":        "[node]\nlog_level = \"loud\"",
		"poll":             "[cron]\npoll = \"often\"",
		"negative gc":      "[cron]\ngc = \"-1s\"",
		"connection":       "[[interface]]\nconnection = \"pigeon\"\naddress = \"roof\"",
		"encoding":         "[[interface]]\nconnection = \"file\"\nencoding = \"json\"\naddress = \"a\"",
		"no address":       "[[interface]]\nconnection = \"file\"",
		"nats without url": "[[interface]]\nconnection = \"nats\"\naddress = \"in\"",
		"discovery id":     "[discovery]\nipv4 = true",
	} {
		t.Run(name, func(t *testing.T) {
			_, err := decode(t, text)
			var confErr *ConfigError
			assert.True(t, errors.As(err, &confErr), "got %v", err)
		})
	}
}

func TestParseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bmfd.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleConfig), 0o644))

	conf, err := parse(path)
	require.NoError(t, err)
	assert.Len(t, conf.Interfaces, 3)

	_, err = parse(filepath.Join(t.TempDir(), "missing.toml"))
	var confErr *ConfigError
	assert.True(t, errors.As(err, &confErr))
}

func TestCommandLineInterfaces(t *testing.T) {
	t.Cleanup(func() {
		flags.readBMF, flags.writeBMF, flags.fifoBMF, flags.device, flags.logBMF = nil, nil, nil, nil, nil
	})

	flags.readBMF = []string{"in.bmf"}
	flags.fifoBMF = []string{"rx,tx"}
	flags.device = []string{"/dev/ttyACM0"}
	flags.logBMF = []string{"bus.log"}

	ifaces, err := commandLineInterfaces()
	require.NoError(t, err)
	require.Len(t, ifaces, 4)

	assert.Equal(t, eif.Spec{Address: "in.bmf", Read: true, Instant: true}, ifaces[0].Spec)
	assert.Equal(t, eif.Spec{Address: "rx", Peer: "tx", Read: true, Write: true, Instant: true}, ifaces[1].Spec)
	assert.Equal(t, eif.Serial, ifaces[2].Connection)
	assert.Equal(t, 57600, ifaces[2].Spec.Baud)
	assert.True(t, ifaces[3].Spec.Logging)
	for _, iface := range ifaces {
		assert.Equal(t, eif.BMF, iface.Encoding)
	}

	flags.fifoBMF = []string{"only-one"}
	_, err = commandLineInterfaces()
	assert.Error(t, err)
}
