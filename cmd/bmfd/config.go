package main

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
	log "github.com/sirupsen/logrus"

	"github.com/dtn7/bmfbus/pkg/eif"
)

const (
	defaultNumberType   = "uint64"
	defaultMaxRecords   = 4096
	defaultPoll         = 10 * time.Millisecond
	defaultGC           = time.Minute
	defaultAnnouncement = 10 * time.Second
)

type ConfigError struct {
	message string
	cause   error
}

func NewConfigError(message string, cause error) *ConfigError {
	return &ConfigError{message: message, cause: cause}
}

func (e *ConfigError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("Error during config parsing: %v: %v", e.message, e.cause)
	}
	return fmt.Sprintf("Error during config parsing: %v", e.message)
}

func (e *ConfigError) Unwrap() error { return e.cause }

type config struct {
	Node       nodeConfig
	Journal    journalConfig
	Cron       cronConfig
	REST       restConfig
	UNIX       unixConfig
	Discovery  discoveryConfig
	NATS       natsConfig
	Interfaces []interfaceConfig
}

type nodeConfig struct {
	ID         string
	NumberType string
	LogLevel   log.Level
}

type cronConfig struct {
	Poll time.Duration
	GC   time.Duration
}

type discoveryConfig struct {
	IPv4     bool
	IPv6     bool
	Interval time.Duration
}

type interfaceConfig struct {
	Connection eif.ConnectionType
	Encoding   eif.Encoding
	Spec       eif.Spec
}

type tomlConfig struct {
	Node      tomlNodeConfig
	Journal   journalConfig
	Cron      tomlCronConfig
	REST      restConfig `toml:"rest"`
	UNIX      unixConfig `toml:"unix"`
	Discovery tomlDiscoveryConfig
	NATS      natsConfig `toml:"nats"`
	Interface []interfaceTomlConfig
}

type tomlNodeConfig struct {
	ID         string `toml:"id"`
	NumberType string `toml:"number_type"`
	LogLevel   string `toml:"log_level"`
}

// journalConfig enables the message journal if Path is set.
type journalConfig struct {
	Path       string
	MaxRecords uint64 `toml:"max_records"`
}

type tomlCronConfig struct {
	Poll string
	GC   string `toml:"gc"`
}

type restConfig struct {
	Address string
}

type unixConfig struct {
	Socket string
}

type tomlDiscoveryConfig struct {
	IPv4     bool `toml:"ipv4"`
	IPv6     bool `toml:"ipv6"`
	Interval string
}

type natsConfig struct {
	URL string `toml:"url"`
}

type interfaceTomlConfig struct {
	Connection string
	Encoding   string
	Address    string
	Peer       string
	Read       *bool
	Write      *bool
	Listen     bool
	Logging    bool
	Instant    *bool
	ReceiveAll bool `toml:"receive_all"`
	MaxPerPoll int  `toml:"max_per_poll"`
	Baud       int
}

func defaultConfig() config {
	return config{
		Node: nodeConfig{
			NumberType: defaultNumberType,
			LogLevel:   log.InfoLevel,
		},
		Journal: journalConfig{MaxRecords: defaultMaxRecords},
		Cron:    cronConfig{Poll: defaultPoll, GC: defaultGC},
		Discovery: discoveryConfig{
			Interval: defaultAnnouncement,
		},
	}
}

func parseDuration(name, value string, fallback time.Duration) (time.Duration, error) {
	if value == "" {
		return fallback, nil
	}
	duration, err := time.ParseDuration(value)
	if err != nil {
		return 0, NewConfigError(fmt.Sprintf("Error parsing %v", name), err)
	}
	if duration <= 0 {
		return 0, NewConfigError(fmt.Sprintf("%v must be positive", name), nil)
	}
	return duration, nil
}

func boolOr(value *bool, fallback bool) bool {
	if value == nil {
		return fallback
	}
	return *value
}

func parseInterface(iface interfaceTomlConfig) (interfaceConfig, error) {
	connection, err := eif.ConnectionTypeFromString(iface.Connection)
	if err != nil {
		return interfaceConfig{}, NewConfigError("Error parsing interface connection", err)
	}
	encoding, err := eif.EncodingFromString(iface.Encoding)
	if err != nil {
		return interfaceConfig{}, NewConfigError("Error parsing interface encoding", err)
	}
	if iface.Address == "" {
		return interfaceConfig{}, NewConfigError(fmt.Sprintf("%v interface without address", connection), nil)
	}
	if iface.MaxPerPoll < 0 {
		return interfaceConfig{}, NewConfigError("max_per_poll must not be negative", nil)
	}

	return interfaceConfig{
		Connection: connection,
		Encoding:   encoding,
		Spec: eif.Spec{
			Address:    iface.Address,
			Peer:       iface.Peer,
			Read:       boolOr(iface.Read, true),
			Write:      boolOr(iface.Write, true),
			Listen:     iface.Listen,
			Logging:    iface.Logging,
			Instant:    boolOr(iface.Instant, true),
			ReceiveAll: iface.ReceiveAll,
			MaxPerPoll: iface.MaxPerPoll,
			Baud:       iface.Baud,
		},
	}, nil
}

func parse(filename string) (config, error) {
	var tomlConf tomlConfig
	if _, err := toml.DecodeFile(filename, &tomlConf); err != nil {
		return config{}, NewConfigError("Error parsing toml", err)
	}
	return fromToml(tomlConf)
}

func fromToml(tomlConf tomlConfig) (config, error) {
	conf := defaultConfig()

	conf.Node.ID = tomlConf.Node.ID
	if tomlConf.Node.NumberType != "" {
		conf.Node.NumberType = tomlConf.Node.NumberType
	}
	if tomlConf.Node.LogLevel != "" {
		level, err := log.ParseLevel(tomlConf.Node.LogLevel)
		if err != nil {
			return config{}, NewConfigError("Error parsing log level", err)
		}
		conf.Node.LogLevel = level
	}

	conf.Journal.Path = tomlConf.Journal.Path
	if tomlConf.Journal.MaxRecords != 0 {
		conf.Journal.MaxRecords = tomlConf.Journal.MaxRecords
	}

	var err error
	if conf.Cron.Poll, err = parseDuration("cron poll interval", tomlConf.Cron.Poll, defaultPoll); err != nil {
		return config{}, err
	}
	if conf.Cron.GC, err = parseDuration("cron gc interval", tomlConf.Cron.GC, defaultGC); err != nil {
		return config{}, err
	}

	conf.REST = tomlConf.REST
	conf.UNIX = tomlConf.UNIX
	conf.NATS = tomlConf.NATS

	conf.Discovery.IPv4 = tomlConf.Discovery.IPv4
	conf.Discovery.IPv6 = tomlConf.Discovery.IPv6
	if conf.Discovery.Interval, err = parseDuration("discovery interval", tomlConf.Discovery.Interval, defaultAnnouncement); err != nil {
		return config{}, err
	}
	if (conf.Discovery.IPv4 || conf.Discovery.IPv6) && conf.Node.ID == "" {
		return config{}, NewConfigError("Discovery requires a node id", nil)
	}

	conf.Interfaces = make([]interfaceConfig, 0, len(tomlConf.Interface))
	for _, iface := range tomlConf.Interface {
		parsed, err := parseInterface(iface)
		if err != nil {
			return config{}, err
		}
		if parsed.Connection == eif.NATS && conf.NATS.URL == "" {
			return config{}, NewConfigError("NATS interface without nats url", nil)
		}
		conf.Interfaces = append(conf.Interfaces, parsed)
	}

	return conf, nil
}
