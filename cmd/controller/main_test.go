package main

import (
	"context"
	"net"
	"testing"
	"time"

	"go.uber.org/zap"

	"worker-rpc/batch"
	"worker-rpc/worker"
)

func TestConnectByAddress(t *testing.T) {
	ep, err := worker.NewEndpoint(batch.NewWorker(nil))
	if err != nil {
		t.Fatal(err)
	}
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	go ep.Serve(listener, "", nil)
	defer ep.Shutdown(time.Second)

	ctx := context.Background()
	cfg := config{addr: listener.Addr().String(), service: "batch", codec: "cbor", timeout: 2 * time.Second}
	p, err := connect(ctx, cfg, zap.NewNop())
	if err != nil {
		t.Fatalf("connect %s: %v", cfg.addr, err)
	}
	defer p.Close()

	c, err := batch.NewClient(ctx, p)
	if err != nil {
		t.Fatal(err)
	}
	if err := c.Init(ctx, batch.Manifest{VideoTitle: "lectures"}); err != nil {
		t.Fatal(err)
	}
	if title, err := c.Title(ctx); err != nil || title != "lectures" {
		t.Fatalf("expect title lectures, got %q, %v", title, err)
	}
}

func TestConnectByAddressUnreachable(t *testing.T) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	addr := listener.Addr().String()
	listener.Close()

	cfg := config{addr: addr, codec: "json", timeout: time.Second}
	if _, err := connect(context.Background(), cfg, zap.NewNop()); err == nil {
		t.Fatal("expect dial error for closed address")
	}
}

func TestConnectNeedsTarget(t *testing.T) {
	if _, err := connect(context.Background(), config{codec: "json", timeout: time.Second}, zap.NewNop()); err == nil {
		t.Fatal("expect error without -addr, -etcd or -spawn")
	}
}
