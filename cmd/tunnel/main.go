// Command tunnel runs the two-stage variant's tunnel process: it
// terminates the envelope-framed pipe from a scheduler and holds the
// dial-once-per-dpid connections to the real downstream controllers.
package main

import (
	"context"
	"net"
	"os"
	"os/signal"
	"syscall"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/ofmux/ofmux/config"
	"github.com/ofmux/ofmux/internal/capture"
	"github.com/ofmux/ofmux/internal/ofproxy"
	"github.com/ofmux/ofmux/internal/tunnel"
)

func main() {
	fs := pflag.NewFlagSet("tunnel", pflag.ExitOnError)
	flags := config.BindFlags(fs)
	if err := fs.Parse(os.Args[1:]); err != nil {
		log.WithError(err).Fatal("parsing flags")
	}

	base, err := config.Load(flags.ConfigPath)
	if err != nil {
		log.WithError(err).Fatal("loading configuration")
	}
	cfg, err := config.Apply(base, flags)
	if err != nil {
		log.WithError(err).Fatal("applying flag overrides")
	}
	if cfg.TunnelAddr == "" {
		cfg.TunnelAddr = ":9999"
	}

	logger := log.NewEntry(log.StandardLogger())

	var capWriter ofproxy.CaptureWriter
	if cfg.CaptureFile != "" {
		rec, err := capture.Open(cfg.CaptureFile)
		if err != nil {
			log.WithError(err).Fatal("opening capture file")
		}
		defer rec.Close()
		capWriter = rec
	}

	peer := tunnel.NewPeer(&ofproxy.NetDialer{}, cfg.ControllerAddrs(), ofproxy.NewRoundRobin(), capWriter, logger)

	ln, err := net.Listen("tcp", cfg.TunnelAddr)
	if err != nil {
		log.WithError(err).Fatal("listening for schedulers")
	}
	logger.WithField("tunnel_addr", cfg.TunnelAddr).Info("tunnel listening")

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		ln.Close()
	}()

	if err := peer.Serve(ctx, ofproxy.NewNetListener(ln)); err != nil {
		logger.WithError(err).Info("listener closed")
	}
	peer.Wait()
}
