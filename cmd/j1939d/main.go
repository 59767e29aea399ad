// Command j1939d is a daemon binding one J1939 endpoint to a CAN
// interface and, depending on flags, relaying diagnostics to MQTT,
// exposing a read-only introspection server, and bridging DM1/DM2
// trouble codes — the reference wiring for internal/j1939 and its
// external collaborators.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/openecu/j1939sock/common"
	"github.com/openecu/j1939sock/internal/candev"
	"github.com/openecu/j1939sock/internal/diagrelay"
	"github.com/openecu/j1939sock/internal/dtcbridge"
	"github.com/openecu/j1939sock/internal/j1939"
	"github.com/openecu/j1939sock/internal/localecu"
	"github.com/openecu/j1939sock/internal/monitor"
	"github.com/openecu/j1939sock/internal/netdev"
	"github.com/openecu/j1939sock/internal/tp"
)

const (
	defaultIface        = "can0"
	defaultSrcAddr      = 0xFE
	defaultMonitorAddr  = ":8080"
	defaultDTCDBPath    = "dtc.db"
	defaultLocalECUPath = "localecu.db"
	defaultMaxSessions  = 4

	// addressClaimedPGN is the well-known PGN (60928) an ECU broadcasts
	// its NAME on to claim a bus address.
	addressClaimedPGN = 0xEE00
	// addressClaimInterval is how often the claim is re-broadcast, so a
	// node joining the bus late still observes who holds each address.
	addressClaimInterval = 30 * time.Second
)

var (
	iface         = flag.String("iface", defaultIface, "CAN interface to bind the J1939 endpoint on")
	extraLinkKind = flag.String("vcan-kind", "", "additional netlink link kind to accept as CAN-capable (e.g. vcan, for test rigs)")
	srcAddr       = flag.Uint("addr", defaultSrcAddr, "local J1939 source address (0xFE = no address)")
	srcName       = flag.Uint64("name", 0, "local J1939 NAME (0 = unused)")

	enableMQTT = flag.Bool("mqtt", false, "relay error-queue diagnostics to MQTT")
	mqttBroker = flag.String("mqtt-broker", "tcp://localhost:1883", "MQTT broker address")
	mqttTopic  = flag.String("mqtt-topic", "j1939", "MQTT base topic for diagnostics")

	enableMonitor = flag.Bool("monitor", true, "serve the read-only HTTP/WebSocket introspection endpoint")
	monitorAddr   = flag.String("monitor-addr", defaultMonitorAddr, "listen address for the introspection server")

	enableDTC  = flag.Bool("dtc", true, "bridge DM1/DM2 diagnostic trouble codes")
	dtcDBPath  = flag.String("dtc-db", defaultDTCDBPath, "bbolt database path for DTC dedup")
	durableECU = flag.Bool("durable-ecu", false, "persist local-ECU claims across restarts in a bbolt database")
	ecuDBPath  = flag.String("ecu-db", defaultLocalECUPath, "bbolt database path for durable local-ECU claims")
)

func main() {
	flag.Parse()

	log := logrus.NewEntry(logrus.StandardLogger())
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var extraKinds []string
	if *extraLinkKind != "" {
		extraKinds = append(extraKinds, *extraLinkKind)
	}
	resolver := netdev.NewResolver(log, extraKinds...)

	var ecu j1939.LocalECURegistry
	if *durableECU {
		reg, err := localecu.NewDurableRegistry(*ecuDBPath)
		if err != nil {
			log.WithError(err).Fatal("failed to open durable local-ECU registry")
		}
		ecu = reg
	} else {
		ecu = localecu.NewRegistry()
	}

	dev, err := candev.Open(*iface, log)
	if err != nil {
		log.WithError(err).Fatal("failed to open CAN device")
	}
	defer dev.Close()

	engine := tp.NewEngine(dev, defaultMaxSessions, log)

	col := j1939.Collaborators{Resolver: resolver, ECU: ecu}

	ep := j1939.Open(log.WithField("component", "primary"))
	bindAddr := j1939.SocketAddr{Ifindex: dev.Ifindex(), Name: *srcName, Addr: uint8(*srcAddr)}
	if err := ep.Bind(ctx, col, bindAddr); err != nil {
		log.WithError(err).Fatal("failed to bind primary endpoint")
	}
	defer ep.Release(context.Background(), ecu)

	reg, ok := j1939.RegistryFor(dev.Ifindex())
	if !ok {
		log.Fatal("registry missing immediately after bind")
	}
	router := candev.NewFrameRouter(dev.Ifindex(), reg)
	go router.Run(dev.Recv())

	goneCh, err := netdev.Watch(ctx, dev.Ifindex(), log)
	if err != nil {
		log.WithError(err).Warn("failed to watch interface for removal, device-gone teardown disabled")
	} else {
		go watchGone(ctx, goneCh, log)
	}

	if *srcName != 0 {
		go claimAddress(ctx, ep, engine, dev.Ifindex(), *srcName, log)
	}

	var relay *diagrelay.Relay
	if *enableMQTT {
		relay = diagrelay.NewRelay(diagrelay.Config{
			Broker:    *mqttBroker,
			ClientID:  "j1939d",
			BaseTopic: *mqttTopic,
		}, log)
		if err := relay.Connect(); err != nil {
			log.WithError(err).Error("failed to connect diagnostics relay, continuing without it")
			relay = nil
		} else {
			defer relay.Disconnect()
			ep.SetErrQueue(true)
			localName, _ := ep.GetName(false)
			relay.Watch(ctx, dev.Ifindex(), localName.Addr, ep)
		}
	}

	if *enableDTC {
		bridge, err := dtcbridge.Open(ctx, col, dev.Ifindex(), *dtcDBPath, log)
		if err != nil {
			log.WithError(err).Error("failed to start DTC bridge, continuing without it")
		} else {
			defer bridge.Close(context.Background(), ecu)
			go bridge.Run(ctx)
			if relay != nil {
				relay.WatchDTC(ctx, bridge.Codes)
			} else {
				go drainDTCs(bridge.Codes, log)
			}
		}
	}

	if *enableMonitor {
		src := registrySource{ifindexes: []int{dev.Ifindex()}}
		srv := monitor.NewServer(src, log)
		go func() {
			if err := monitor.Serve(ctx, *monitorAddr, srv); err != nil {
				log.WithError(err).Warn("monitor server stopped")
			}
		}()
		log.WithField("addr", *monitorAddr).Info("introspection server listening")
	}

	log.WithField("iface", *iface).Info("j1939d running, press Ctrl+C to stop")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh
	log.Info("shutting down")
	cancel()
	time.Sleep(200 * time.Millisecond)
}

// watchGone drives the device-gone transition: on an EventGone for the
// watched interface, it marks the interface's Registry gone, which wakes
// every endpoint currently blocked draining in Release so teardown does
// not wait forever on a device that no longer exists.
func watchGone(ctx context.Context, events <-chan netdev.Event, log *logrus.Entry) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if ev.Kind != netdev.EventGone {
				continue
			}
			reg, ok := j1939.RegistryFor(ev.Ifindex)
			if !ok {
				continue
			}
			log.WithField("ifindex", ev.Ifindex).Warn("interface removed, marking registry gone")
			reg.MarkGone()
		}
	}
}

// claimAddress periodically (re-)broadcasts a J1939 Address Claimed
// message (PGN 0xEE00, the configured NAME in its 8-byte little-endian
// wire form) over tr, exercising the single-frame send path and the
// Transport collaborator the way a real client of this daemon would:
// every other participant here only ever receives.
func claimAddress(ctx context.Context, ep *j1939.Endpoint, tr j1939.Transport, ifindex int, name uint64, log *logrus.Entry) {
	ep.SetBroadcastPermitted(true)

	payload := make([]byte, 8)
	binary.LittleEndian.PutUint64(payload, name)
	dest := &j1939.SocketAddr{Ifindex: ifindex, Addr: j1939.BroadcastAddr, PGN: addressClaimedPGN}

	send := func() {
		if _, err := ep.Send(ctx, tr, payload, dest); err != nil {
			log.WithError(err).Warn("failed to broadcast address claim")
		}
	}

	send()
	ticker := time.NewTicker(addressClaimInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			send()
		}
	}
}

// drainDTCs keeps a dtcbridge.Bridge's Codes channel moving when no
// diagrelay is configured to consume it, since once 64 codes are unread
// the bridge blocks on the full channel until its context is cancelled.
func drainDTCs(codes <-chan common.DTCCode, log *logrus.Entry) {
	for c := range codes {
		log.WithFields(logrus.Fields{"spn": c.SPN, "fmi": c.FMI, "mid": c.MID}).Info("DTC observed (no diagnostics relay configured)")
	}
}

// registrySource adapts a fixed set of interface indexes to
// monitor.Source.
type registrySource struct {
	ifindexes []int
}

func (s registrySource) Snapshot() monitor.Snapshot {
	snap := monitor.Snapshot{TakenAt: time.Now().UnixNano()}
	for _, ix := range s.ifindexes {
		reg, ok := j1939.RegistryFor(ix)
		if !ok {
			continue
		}
		count, refs := reg.Snapshot()
		snap.Interfaces = append(snap.Interfaces, monitor.InterfaceSnapshot{
			Ifindex:       ix,
			EndpointCount: count,
			InstanceRefs:  refs,
		})
	}
	return snap
}
