// Command scheduler runs the direct-variant OpenFlow multiplexing
// proxy: one switch-facing listener fanning each accepted switch
// connection out to the configured controllers (or, with
// --tunnel-addr, to a single internal/tunnel peer).
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
	fs := pflag.NewFlagSet("scheduler", pflag.ExitOnError)
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

	dialer := ofproxy.Dialer(&ofproxy.NetDialer{})
	controllers := cfg.ControllerAddrs()
	if cfg.TunnelAddr != "" {
		dialer = &tunnel.UplinkDialer{Inner: dialer}
		controllers = []string{cfg.TunnelAddr}
		logger.WithField("tunnel_addr", cfg.TunnelAddr).Info("running in tunnel-uplink mode")
	}

	// Service owns the RoleTable a "master" policy must read from, so
	// it is built with a placeholder policy and patched below rather
	// than handed a RoleTable of its own before one exists.
	svc := ofproxy.NewService(dialer, controllers, ofproxy.NewRoundRobin(), capWriter, logger)
	svc.FatalOnDesync = cfg.FatalOnDesync

	policy, err := schedulingPolicy(cfg.SchedulerPolicy, svc.Roles)
	if err != nil {
		log.WithError(err).Fatal("configuring scheduling policy")
	}
	svc.Policy = policy

	ln, err := net.Listen("tcp", cfg.ListenAddr)
	if err != nil {
		log.WithError(err).Fatal("listening for switches")
	}
	logger.WithField("listen_addr", cfg.ListenAddr).Info("scheduler listening")

	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
		ln.Close()
	}()

	if err := svc.Serve(ctx, ofproxy.NewNetListener(ln)); err != nil {
		logger.WithError(err).Info("listener closed")
	}
	svc.Wait()
}

func schedulingPolicy(name string, roles *ofproxy.RoleTable) (ofproxy.Policy, error) {
	switch name {
	case "", "round-robin":
		return ofproxy.NewRoundRobin(), nil
	case "first":
		return ofproxy.AlwaysFirst{}, nil
	case "master":
		return ofproxy.NewAlwaysMaster(roles), nil
	case "weighted":
		return ofproxy.NewWeightedRoundRobin(nil), nil
	default:
		return nil, unknownPolicyError(name)
	}
}

type unknownPolicyError string

func (e unknownPolicyError) Error() string { return "unknown scheduler policy: " + string(e) }
