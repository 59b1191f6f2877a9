// Command worker serves the batch service, either on a TCP listener (optionally announced
// in etcd) or on its own stdin/stdout when spawned by a controller.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"worker-rpc/batch"
	"worker-rpc/message"
	"worker-rpc/middleware"
	"worker-rpc/registry"
	"worker-rpc/worker"
)

type config struct {
	service string
	weight  int
	version string
	ttl     int64
	rate    float64
	burst   int
	timeout time.Duration
}

func main() {
	var cfg config
	var (
		listen    = flag.String("listen", ":7070", "TCP listen address")
		advertise = flag.String("advertise", "", "Address announced to the registry (default: listener address)")
		etcd      = flag.String("etcd", "", "etcd endpoints, comma-separated; empty disables announcement")
		stdio     = flag.Bool("stdio", false, "Serve a single channel on stdin/stdout instead of listening")
		debug     = flag.Bool("debug", false, "Debug logging")
	)
	flag.StringVar(&cfg.service, "service", "batch", "Service name to announce")
	flag.IntVar(&cfg.weight, "weight", 1, "Load-balancing weight")
	flag.StringVar(&cfg.version, "version", "", "Version to announce")
	flag.Int64Var(&cfg.ttl, "ttl", 10, "Registry lease TTL in seconds")
	flag.Float64Var(&cfg.rate, "rate", 0, "Calls per second admitted; 0 disables rate limiting")
	flag.IntVar(&cfg.burst, "burst", 10, "Rate limiter burst")
	flag.DurationVar(&cfg.timeout, "timeout", 0, "Per-call reply deadline; 0 disables it. A timed-out call still finishes before the next one starts")
	flag.Parse()

	log, err := newLogger(*debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()
	worker.SetLogger(log)

	ep, err := newEndpoint(cfg, log)
	if err != nil {
		log.Fatal("create endpoint", zap.Error(err))
	}

	if *stdio {
		// stdout carries frames; logs stay on stderr
		if err := ep.ServeConn(stdioConn{os.Stdin, os.Stdout}); err != nil {
			log.Fatal("serve stdio", zap.Error(err))
		}
		return
	}

	if err := serve(ep, log, *listen, *advertise, *etcd); err != nil {
		log.Fatal("serve", zap.Error(err))
	}
}

func serve(ep *worker.Endpoint, log *zap.Logger, listen, advertise, etcd string) error {
	var reg registry.Registry
	if etcd != "" {
		etcdReg, err := registry.NewEtcdRegistry(strings.Split(etcd, ","), log.Named("registry"))
		if err != nil {
			return fmt.Errorf("connect etcd: %w", err)
		}
		defer etcdReg.Close()
		reg = etcdReg
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	served := make(chan error, 1)
	go func() { served <- ep.ListenAndServe("tcp", listen, advertise, reg) }()
	log.Info("worker listening", zap.String("addr", listen), zap.String("service", ep.Name()))

	select {
	case err := <-served:
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down")
	if err := ep.Shutdown(5 * time.Second); err != nil {
		log.Warn("shutdown", zap.Error(err))
	}
	return <-served
}

// newEndpoint serves a batch worker. Dispatch stays serial: the controller sends init
// without waiting for a reply and relies on it running before the calls that follow.
func newEndpoint(cfg config, log *zap.Logger) (*worker.Endpoint, error) {
	ep, err := worker.NewEndpoint(batch.NewWorker(log.Named("batch")),
		worker.WithServiceName(cfg.service),
		worker.WithWeight(cfg.weight),
		worker.WithVersion(cfg.version),
		worker.WithLeaseTTL(cfg.ttl),
	)
	if err != nil {
		return nil, err
	}
	ep.Use(middleware.RecoverMiddleware(func(req *message.Envelope, recovered any) {
		log.Error("panic in middleware", zap.String("method", req.Method), zap.Any("panic", recovered))
	}))
	ep.Use(middleware.LoggingMiddleware(log.Named("calls")))
	if cfg.rate > 0 {
		ep.Use(middleware.RateLimitMiddleware(cfg.rate, cfg.burst))
	}
	if cfg.timeout > 0 {
		ep.Use(middleware.TimeOutMiddleware(cfg.timeout))
	}
	return ep, nil
}

func newLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

type stdioConn struct {
	io.Reader
	io.WriteCloser
}
