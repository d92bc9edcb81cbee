// rtcpctl dials an RTCP peer, runs the bind handshake, opens logical ports
// and keeps the session alive until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/danmuck/rtcpctl/internal/channel"
	"github.com/danmuck/rtcpctl/internal/config"
	"github.com/danmuck/rtcpctl/internal/observability"
	"github.com/danmuck/rtcpctl/internal/rtcp"
	"github.com/danmuck/rtcpctl/internal/transport"
)

func main() {
	peer := flag.String("peer", "127.0.0.1:5100", "RTCP peer address")
	portsArg := flag.String("ports", "7400", "comma-separated logical ports to open")
	keepAlive := flag.Duration("keep-alive", 10*time.Second, "keep-alive interval")
	noCRC := flag.Bool("no-crc", false, "disable CRC computation")
	configPath := flag.String("config", "", "path to transport TOML config")
	flag.Parse()

	logger := observability.InitLogger("rtcpctl")

	ports, err := parsePorts(*portsArg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rtcpctl: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Default()
	if *configPath != "" {
		cfg, err = config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "rtcpctl: %v\n", err)
			os.Exit(1)
		}
	}
	if *noCRC {
		cfg.CalculateCRC = false
		cfg.CheckCRC = false
	}

	t := transport.New(&cfg, logger)
	manager := rtcp.NewManager(t, logger)
	t.SetControlHandler(manager.ProcessRTCPMessage)
	defer t.Close()

	ch, err := t.Connect(*peer)
	if err != nil {
		logger.Error().Err(err).Msg("connect failed")
		os.Exit(1)
	}

	for _, port := range ports {
		ch.AddPendingLogicalPort(port)
	}
	if _, err := manager.SendConnectionRequest(ch); err != nil {
		logger.Error().Err(err).Msg("bind request failed")
		os.Exit(1)
	}

	if !waitEstablished(ch, 5*time.Second) {
		logger.Error().Str("status", ch.Status().String()).Msg("bind did not complete")
		os.Exit(1)
	}
	logger.Info().Str("peer", *peer).Msg("session established")

	for _, port := range ports {
		if _, err := manager.SendOpenLogicalPortRequest(ch, port); err != nil {
			logger.Warn().Err(err).Uint16("logical_port", port).Msg("open request failed")
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	go manager.RunKeepAlive(ctx, ch, *keepAlive)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()

	manager.SendUnbindConnectionRequest(ch)
	logger.Info().
		Interface("open", ch.LogicalPorts()).
		Interface("rejected", ch.RejectedLogicalPorts()).
		Msg("session summary")
}

func waitEstablished(ch *channel.Channel, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if ch.ConnectionEstablished() {
			return true
		}
		time.Sleep(50 * time.Millisecond)
	}
	return false
}

func parsePorts(arg string) ([]uint16, error) {
	parts := strings.Split(arg, ",")
	ports := make([]uint16, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseUint(part, 10, 16)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("invalid logical port %q", part)
		}
		ports = append(ports, uint16(v))
	}
	if len(ports) == 0 {
		return nil, fmt.Errorf("no logical ports given")
	}
	return ports, nil
}
