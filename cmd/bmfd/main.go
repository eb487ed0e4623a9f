// SPDX-License-Identifier: GPL-3.0-or-later

// bmfd runs a message bus node: it opens the configured interfaces, dispatches and
// forwards messages between them and offers the REST and UNIX agents.
package main

import (
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/tebeka/atexit"

	"github.com/dtn7/bmfbus/pkg/application_agent"
	"github.com/dtn7/bmfbus/pkg/discovery"
	"github.com/dtn7/bmfbus/pkg/eif"
	"github.com/dtn7/bmfbus/pkg/eif/file_eif"
	"github.com/dtn7/bmfbus/pkg/eif/nats_eif"
	"github.com/dtn7/bmfbus/pkg/eif/quic_eif"
	"github.com/dtn7/bmfbus/pkg/eif/serial_eif"
	"github.com/dtn7/bmfbus/pkg/eif/socket_eif"
	"github.com/dtn7/bmfbus/pkg/messages"
	"github.com/dtn7/bmfbus/pkg/processing"
	"github.com/dtn7/bmfbus/pkg/rest_agent"
	"github.com/dtn7/bmfbus/pkg/store"
	"github.com/dtn7/bmfbus/pkg/unix_agent"
)

const (
	envConfig   = "BMFD_CONFIG"
	envLogLevel = "BMFD_LOG_LEVEL"
)

var flags struct {
	config   string
	readBMF  []string
	writeBMF []string
	fifoBMF  []string
	device   []string
	logBMF   []string
}

var rootCmd = &cobra.Command{
	Use:   "bmfd",
	Short: "bmfd runs a message bus node",
	Long: `bmfd runs a message bus node. Interfaces are taken from the configuration ` +
		`file and from the command line; the node runs until interrupted.`,
	Args: cobra.NoArgs,
	Run: func(cmd *cobra.Command, args []string) {
		run()
	},
}

func init() {
	rootCmd.Flags().StringVar(&flags.config, "config", "", "TOML configuration file (default $"+envConfig+")")
	rootCmd.Flags().StringArrayVarP(&flags.readBMF, "read-bmf", "r", nil, "read BMF messages from `file`")
	rootCmd.Flags().StringArrayVarP(&flags.writeBMF, "write-bmf", "w", nil, "write BMF messages to `file`")
	rootCmd.Flags().StringArrayVarP(&flags.fifoBMF, "fifo-bmf", "f", nil, "exchange BMF messages over the FIFO pair `in,out`")
	rootCmd.Flags().StringArrayVarP(&flags.device, "device-bmf", "d", nil, "exchange BMF messages over the serial `device`")
	rootCmd.Flags().StringArrayVarP(&flags.logBMF, "log-bmf", "l", nil, "log every message in BMF to `file`")
}

// commandLineInterfaces turns the interface flags into interface configurations.
func commandLineInterfaces() ([]interfaceConfig, error) {
	ifaces := make([]interfaceConfig, 0)

	add := func(connection eif.ConnectionType, spec eif.Spec) {
		spec.Instant = true
		ifaces = append(ifaces, interfaceConfig{Connection: connection, Encoding: eif.BMF, Spec: spec})
	}

	for _, file := range flags.readBMF {
		add(eif.File, eif.Spec{Address: file, Read: true})
	}
	for _, file := range flags.writeBMF {
		add(eif.File, eif.Spec{Address: file, Write: true})
	}
	for _, pair := range flags.fifoBMF {
		fifos := strings.Split(pair, ",")
		if len(fifos) != 2 || fifos[0] == "" || fifos[1] == "" {
			return nil, fmt.Errorf("--fifo-bmf takes exactly two FIFOs, got %q", pair)
		}
		add(eif.File, eif.Spec{Address: fifos[0], Peer: fifos[1], Read: true, Write: true})
	}
	for _, device := range flags.device {
		add(eif.Serial, eif.Spec{Address: device, Read: true, Write: true, Baud: serial_eif.DefaultBaud})
	}
	for _, file := range flags.logBMF {
		add(eif.File, eif.Spec{Address: file, Write: true, Logging: true})
	}
	return ifaces, nil
}

func loadConfig() (config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.WithError(err).Warn("Failed to load .env file")
	}

	path := flags.config
	if path == "" {
		path = os.Getenv(envConfig)
	}

	conf := defaultConfig()
	if path != "" {
		var err error
		if conf, err = parse(path); err != nil {
			return config{}, err
		}
	}

	if level := os.Getenv(envLogLevel); level != "" {
		parsed, err := log.ParseLevel(level)
		if err != nil {
			return config{}, NewConfigError("Error parsing "+envLogLevel, err)
		}
		conf.Node.LogLevel = parsed
	}

	cliInterfaces, err := commandLineInterfaces()
	if err != nil {
		return config{}, NewConfigError("Error parsing command line", err)
	}
	conf.Interfaces = append(conf.Interfaces, cliInterfaces...)

	if len(conf.Interfaces) == 0 {
		return config{}, NewConfigError("No interfaces configured", nil)
	}
	return conf, nil
}

// announcements lists the listening socket interfaces for neighbour discovery.
func announcements(conf config) []announcementSource {
	sources := make([]announcementSource, 0)
	for _, iface := range conf.Interfaces {
		if iface.Connection != eif.Socket || !iface.Spec.Listen {
			continue
		}
		_, portString, err := net.SplitHostPort(iface.Spec.Address)
		if err != nil {
			continue
		}
		port, err := strconv.ParseUint(portString, 10, 16)
		if err != nil || port == 0 {
			continue
		}
		sources = append(sources, announcementSource{encoding: iface.Encoding, port: uint16(port)})
	}
	return sources
}

type announcementSource struct {
	encoding eif.Encoding
	port     uint16
}

func startDiscovery(conf config, core *processing.Core) *discovery.DiscoveryManager {
	sources := announcements(conf)
	msgs := make([]discovery.Announcement, 0, len(sources))
	for _, source := range sources {
		encoding := source.encoding
		if encoding == eif.NoEncoding {
			encoding = eif.BMF
		}
		msgs = append(msgs, discovery.Announcement{
			Node:       conf.Node.ID,
			Connection: eif.Socket,
			Encoding:   encoding,
			Port:       source.port,
		})
	}

	var manager *discovery.DiscoveryManager
	ready := make(chan struct{})
	register := func(announcement discovery.Announcement, address string) {
		ports, err := core.Open(announcement.Connection, announcement.Encoding, eif.Spec{
			Address: address,
			Read:    true,
			Write:   true,
			Instant: true,
		})
		if err != nil {
			log.WithFields(log.Fields{
				"peer":  address,
				"node":  announcement.Node,
				"error": err,
			}).Warn("Connecting to discovered peer failed")
			<-ready
			manager.Forget(address)
			return
		}
		log.WithFields(log.Fields{
			"peer":  address,
			"node":  announcement.Node,
			"ports": ports,
		}).Info("Connected to discovered peer")
	}

	manager, err := discovery.InitialiseManager(conf.Node.ID, register, msgs, conf.Discovery.Interval,
		conf.Discovery.IPv4, conf.Discovery.IPv6)
	if err != nil {
		log.WithError(err).Fatal("Error starting discovery manager")
	}
	close(ready)
	return manager
}

// setupLogging configures the log format and makes fatal log entries run the
// registered shutdown hooks before exiting.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02T15:04:05.000",
	})
	log.RegisterExitHandler(func() { atexit.Exit(1) })
}

func run() {
	setupLogging()

	conf, err := loadConfig()
	if err != nil {
		log.WithField("error", err).Fatal("Config error")
	}
	log.SetLevel(conf.Node.LogLevel)

	// Setup journal
	var journal *store.Store
	if conf.Journal.Path != "" {
		if err := store.InitialiseStore(conf.Journal.Path, conf.Journal.MaxRecords); err != nil {
			log.WithField("error", err).Fatal("Error initialising journal")
		}
		journal = store.GetStoreSingleton()
		atexit.Register(func() {
			if err := journal.Close(); err != nil {
				log.WithError(err).Error("Error closing journal")
			}
		})
	}

	// Setup core
	core := processing.NewCore(conf.Node.NumberType, journal)
	core.Start()
	atexit.Register(func() {
		if err := core.Stop(); err != nil {
			log.WithError(err).Warn("Error stopping core")
		}
	})

	// Setup agents
	if err := application_agent.InitialiseApplicationAgentManager(); err != nil {
		log.WithField("error", err).Fatal("Error initialising Application Agent Manager")
	}
	agents := application_agent.GetManagerSingleton()
	atexit.Register(agents.Shutdown)

	if err := core.Do(func(c *processing.Core) {
		c.Builtins.Errors.OnError(messages.LogError)
		c.Builtins.Errors.OnError(agents.Delivery)
	}); err != nil {
		log.WithError(err).Fatal("Error wiring error inboxes")
	}

	// Setup handlers
	file_eif.Register(core)
	socket_eif.Register(core)
	serial_eif.Register(core)
	quic_eif.Register(core)
	if conf.NATS.URL != "" {
		nats_eif.Register(core, nats_eif.URLDialer(conf.NATS.URL, "bmfd-"+conf.Node.ID))
	}

	for _, iface := range conf.Interfaces {
		ports, err := core.Open(iface.Connection, iface.Encoding, iface.Spec)
		if err != nil {
			log.WithFields(log.Fields{
				"connection": iface.Connection,
				"encoding":   iface.Encoding,
				"address":    iface.Spec.Address,
				"error":      err,
			}).Fatal("Error opening interface")
		}
		log.WithFields(log.Fields{
			"connection": iface.Connection,
			"address":    iface.Spec.Address,
			"ports":      ports,
		}).Debug("Opened configured interface")
	}

	if conf.REST.Address != "" {
		restAgent := rest_agent.NewRestAgent("/rest", conf.REST.Address, core)
		if err := agents.RegisterAgent(restAgent); err != nil {
			log.WithError(err).Fatal("Error registering REST application agent")
		}
	}

	if conf.UNIX.Socket != "" {
		unixAgent, err := unix_agent.NewUNIXAgent(conf.UNIX.Socket, core, agents.Inboxes())
		if err != nil {
			log.WithError(err).Fatal("Error creating UNIX application agent")
		}
		if err := agents.RegisterAgent(unixAgent); err != nil {
			log.WithError(err).Fatal("Error registering UNIX application agent")
		}
	}

	// Setup neighbour discovery
	if conf.Discovery.IPv4 || conf.Discovery.IPv6 {
		manager := startDiscovery(conf, core)
		atexit.Register(manager.Close)
	}

	// Setup cron jobs
	s, err := gocron.NewScheduler()
	if err != nil {
		log.WithError(err).Fatal("Error initializing cron")
	}
	atexit.Register(func() {
		if err := s.Shutdown(); err != nil {
			log.WithError(err).Warn("Error stopping cron")
		}
	})

	stopped := make(chan struct{})
	_, err = s.NewJob(
		gocron.DurationJob(conf.Cron.Poll),
		gocron.NewTask(func() {
			live, err := core.Tick()
			if err == nil && !live {
				select {
				case <-stopped:
				default:
					log.Info("All interfaces have ended")
					close(stopped)
				}
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.WithError(err).Fatal("Error initializing polling cronjob")
	}

	_, err = s.NewJob(
		gocron.DurationJob(conf.Cron.GC),
		gocron.NewTask(func() {
			collectGarbage(core, agents, conf.Cron.GC)
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		log.WithError(err).Fatal("Error initializing gc cronjob")
	}
	s.Start()

	// wait for SIGINT, SIGTERM or the end of every interface
	c := make(chan os.Signal, 2)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	select {
	case sig := <-c:
		log.WithField("signal", sig).Info("Shutting down")
	case <-stopped:
	}
	atexit.Exit(0)
}

func collectGarbage(core *processing.Core, agents *application_agent.Manager, interval time.Duration) {
	if core.Journal != nil {
		removed, err := core.Journal.GC()
		if err != nil {
			log.WithError(err).Warn("Journal garbage collection failed")
		} else if removed > 0 {
			log.WithField("removed", removed).Debug("Journal garbage collection")
		}
	}

	if err := core.Do(func(c *processing.Core) {
		c.Builtins.IDs.Clean()
	}); err != nil {
		log.WithError(err).Debug("Skipping message ID cleanup")
	}

	agents.Inboxes().GC(time.Now().Add(-10 * interval))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
