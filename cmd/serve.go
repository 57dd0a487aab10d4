package cmd

import (
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/kismetwireless/kismet-datasource-core/internal/config"
	"github.com/kismetwireless/kismet-datasource-core/internal/dlt"
	"github.com/kismetwireless/kismet-datasource-core/internal/driver"
	"github.com/kismetwireless/kismet-datasource-core/internal/eventbus"
	"github.com/kismetwireless/kismet-datasource-core/internal/gps"
	"github.com/kismetwireless/kismet-datasource-core/internal/hop"
	"github.com/kismetwireless/kismet-datasource-core/internal/httpapi"
	"github.com/kismetwireless/kismet-datasource-core/internal/metrics"
	"github.com/kismetwireless/kismet-datasource-core/internal/packetchain"
	"github.com/kismetwireless/kismet-datasource-core/internal/printer"
	"github.com/kismetwireless/kismet-datasource-core/internal/protocol"
	"github.com/kismetwireless/kismet-datasource-core/internal/remote"
	"github.com/kismetwireless/kismet-datasource-core/internal/tracker"
)

var servePacketChainCapacity int
var servePcapOut string
var servePcapSnaplen uint32

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "run the data source core: driver registry, tracker, channel hopper, remote listener and HTTP API",
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().IntVar(&servePacketChainCapacity, "packet-chain-capacity", 4096, "depth of the in-process packet chain channel")
	serveCmd.Flags().StringVar(&servePcapOut, "pcap-out", "", "optional path to mirror captured link-frame packets into as a pcap file")
	serveCmd.Flags().Uint32Var(&servePcapSnaplen, "pcap-snaplen", 65535, "snapshot length recorded in the pcap file header when --pcap-out is set")
}

func runServe(c *cobra.Command, args []string) error {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return err
	}

	bus := eventbus.New()
	memChain := packetchain.NewMemoryChain(servePacketChainCapacity)
	var chain packetchain.Chain = memChain
	var pcapChain *packetchain.PcapFileChain
	if servePcapOut != "" {
		f, err := os.Create(servePcapOut)
		if err != nil {
			return err
		}
		pcapChain = packetchain.NewPcapFileChain(f, servePcapSnaplen)
		chain = packetchain.NewTeeChain(memChain, pcapChain)
		printer.Infof("packet chain: mirroring captures to pcap file %s\n", servePcapOut)
	}
	gpsTracker := gps.NullTracker{}

	dlts := dlt.NewRegistry()
	registry := driver.NewRegistry()
	driver.RegisterBuiltins(registry, dlts)

	scheduler := hop.NewScheduler(cfg.MaxHopTickHz(), cfg.HopAckSlowThreshold())
	scheduler.SubscribeBus(bus)
	scheduler.Start()
	defer scheduler.Stop()

	trk := tracker.New(registry, bus, chain, gpsTracker, cfg, scheduler, dlts)

	go drainChain(memChain)

	metricsReg := prometheus.NewRegistry()
	metrics.MustRegister(metricsReg)

	api := httpapi.New(trk)
	router := api.Router()
	router.Handle("/metrics", promhttp.HandlerFor(metricsReg, promhttp.HandlerOpts{})).Methods(http.MethodGet)

	remoteListener := remote.New(remote.Config{
		ListenAddr:                   cfg.RemoteListenAddr(),
		WSPath:                       cfg.RemoteWSPath(),
		Token:                        cfg.RemoteToken(),
		MaxFrameBytes:                cfg.MaxFrameBytes(),
		QueueDepth:                   cfg.ReadQueueDepth(),
		FaninBufferWhileOpeningBytes: cfg.FaninBufferWhileOpeningBytes(),
	}, registry, trk, bus, chain, gpsTracker, protocol.EngineConfig{
		CommandTimeout: cfg.CommandTimeout(),
		PingInterval:   cfg.PingInterval(),
		PongTimeout:    cfg.PongTimeout(),
	}, dlts)
	remoteListener.RegisterWS(router)

	errCh := make(chan error, 2)
	go func() {
		printer.Infof("remote listener: starting tcp accept on %s\n", cfg.RemoteListenAddr())
		errCh <- remoteListener.ListenAndServeTCP()
	}()

	httpSrv := &http.Server{Addr: cfg.HTTPListenAddr(), Handler: router}
	go func() {
		printer.Infof("http api: listening on %s\n", cfg.HTTPListenAddr())
		errCh <- httpSrv.ListenAndServe()
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case <-sig:
		printer.Infof("shutting down\n")
		remoteListener.Close()
		if pcapChain != nil {
			if err := pcapChain.Close(); err != nil {
				printer.Warningf("pcap chain: close failed: %v\n", err)
			}
		}
		return httpSrv.Close()
	}
}

// drainChain discards packets handed to the in-process memory chain; a real
// deployment would wire a packet-chain consumer (pcap dump, device tracker
// feed) here instead, which is out of scope (spec §1).
func drainChain(chain *packetchain.MemoryChain) {
	for range chain.Packets() {
	}
}
