package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/danmuck/rtcpctl/internal/channel"
	"github.com/danmuck/rtcpctl/internal/observability"
	"github.com/danmuck/rtcpctl/internal/rtcp"
	"github.com/danmuck/rtcpctl/internal/server"
	"github.com/danmuck/rtcpctl/internal/transport"
)

func main() {
	configPath := flag.String("config", "", "path to rtcpd TOML config")
	listenAddr := flag.String("listen", "", "listen address override")
	flag.Parse()

	logger := observability.InitLogger("rtcpd")

	cfg, err := loadDaemonConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "rtcpd: %v\n", err)
		os.Exit(1)
	}
	if *listenAddr != "" {
		cfg.Transport.ListenAddr = *listenAddr
	}
	if cfg.Transport.ListenAddr == "" {
		cfg.Transport.ListenAddr = ":5100"
	}

	t := transport.New(&cfg.Transport, logger)
	manager := rtcp.NewManager(t, logger)
	t.SetControlHandler(manager.ProcessRTCPMessage)

	for _, port := range cfg.Transport.LogicalPorts {
		port := port
		t.RegisterInputPort(port, func(ch *channel.Channel, payload []byte) {
			logger.Debug().
				Uint16("logical_port", port).
				Int("bytes", len(payload)).
				Str("remote", ch.RemoteAddr().String()).
				Msg("data frame")
		})
	}

	if err := t.Listen(cfg.Transport.ListenAddr); err != nil {
		logger.Error().Err(err).Msg("listen failed")
		os.Exit(1)
	}
	defer t.Close()

	status := server.New("rtcpd", cfg.StatusAddr, t, cfg.CorsOrigins)
	go func() {
		if err := status.Run(); err != nil {
			logger.Warn().Err(err).Msg("status server stopped")
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	go superviseKeepAlive(ctx, t, manager, cfg.KeepAliveInterval)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop
	cancel()
	logger.Info().Msg("shutting down")
}

// superviseKeepAlive starts one keep-alive loop per established channel.
func superviseKeepAlive(ctx context.Context, t *transport.TCPTransport, manager *rtcp.Manager, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	supervised := make(map[*channel.Channel]struct{})
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
		for _, ch := range t.Channels() {
			if !ch.ConnectionEstablished() {
				continue
			}
			if _, ok := supervised[ch]; ok {
				continue
			}
			supervised[ch] = struct{}{}
			go manager.RunKeepAlive(ctx, ch, interval)
		}
		for ch := range supervised {
			if ch.Status() == channel.Disconnected {
				delete(supervised, ch)
			}
		}
	}
}
