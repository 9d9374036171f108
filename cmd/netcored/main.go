// Command netcored is a minimal example server wiring every package in
// this module together: a UDP transport, the handshake state machine,
// one reliable and one unreliable channel carrying chat messages, and a
// Prometheus metrics endpoint.
package main

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"netcore/connection"
	"netcore/endpoint"
	"netcore/metrics"
	"netcore/pkg/logger"
	"netcore/transport"
)

const (
	version = "1.0.0"

	tickRate = 50 * time.Millisecond
)

type config struct {
	listenAddr  string
	metricsAddr string
	protocolID  uint32
	maxClients  int
}

func loadConfig() config {
	return config{
		listenAddr:  "0.0.0.0:7777",
		metricsAddr: "0.0.0.0:9477",
		protocolID:  0x4E455443, // "NETC"
		maxClients:  64,
	}
}

func main() {
	logger.Banner("netcored", version)

	cfg := loadConfig()
	logger.Info("Listen address: %s", cfg.listenAddr)
	logger.Info("Metrics address: %s", cfg.metricsAddr)
	logger.Info("Max clients: %d", cfg.maxClients)

	socket, err := transport.Listen(cfg.listenAddr, 8*1024)
	if err != nil {
		logger.Fatal("bind socket: %v", err)
	}
	defer socket.Close()

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	epCfg := endpoint.DefaultConfig(cfg.protocolID, cfg.maxClients, chatFactory{}, 2)
	epCfg.ConnectionConfig.Channels[1].Kind = connection.Unreliable
	channelSetups := epCfg.ConnectionConfig.Channels
	epCfg.NewChannels = func() []connection.Channel {
		chans := make([]connection.Channel, len(channelSetups))
		for i, setup := range channelSetups {
			chans[i] = connection.NewChannel(setup.Kind, i, setup.Config, chatFactory{})
		}
		return chans
	}

	srv := endpoint.NewServer(epCfg, socket, m)
	logger.Success("Server ready on %s", cfg.listenAddr)

	go serveMetrics(cfg.metricsAddr, reg)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	done := make(chan struct{})
	go tickLoop(srv, done)

	<-sigChan
	logger.Warn("shutting down")
	close(done)
	time.Sleep(100 * time.Millisecond)
	logger.Success("stopped")
}

func tickLoop(srv *endpoint.Server, done <-chan struct{}) {
	ticker := time.NewTicker(tickRate)
	defer ticker.Stop()

	statusTicker := time.NewTicker(5 * time.Second)
	defer statusTicker.Stop()

	for {
		select {
		case <-done:
			return
		case now := <-ticker.C:
			if err := srv.Tick(now); err != nil {
				logger.Error("tick: %v", err)
			}
		case <-statusTicker.C:
			logger.InfoCyan("connected clients: %d", srv.ConnectedClients())
		}
	}
}

func serveMetrics(addr string, reg *prometheus.Registry) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil && err != http.ErrServerClosed {
		logger.Error("metrics server: %v", err)
	}
}
