// Command controller drives a batch worker: it connects (by address, through etcd, or by
// spawning the worker binary), hands it a manifest and lists the entries back. It can
// also render a caption track to an .ass file.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net"
	"os"
	"os/exec"
	"strings"
	"time"

	"go.uber.org/zap"

	"worker-rpc/batch"
	"worker-rpc/bridge"
	"worker-rpc/codec"
	"worker-rpc/loadbalance"
	"worker-rpc/registry"
	"worker-rpc/subtitle"
)

type config struct {
	addr      string
	etcd      string
	spawn     string
	service   string
	balancer  string
	key       string
	codec     string
	timeout   time.Duration
	manifest  string
	captions  string
	pageTitle string
	language  string
	url       string
	out       string
}

func main() {
	var cfg config
	flag.StringVar(&cfg.addr, "addr", "", "Worker address to dial directly")
	flag.StringVar(&cfg.etcd, "etcd", "", "etcd endpoints, comma-separated, for worker discovery")
	flag.StringVar(&cfg.spawn, "spawn", "", "Worker binary to run as a child process over stdin/stdout")
	flag.StringVar(&cfg.service, "service", "batch", "Service name to discover")
	flag.StringVar(&cfg.balancer, "balancer", "roundrobin", "Balancer: roundrobin, weighted or hash")
	flag.StringVar(&cfg.key, "key", "", "Routing key for the hash balancer (default: hostname)")
	flag.StringVar(&cfg.codec, "codec", "json", "Envelope codec: json, binary or cbor")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "Per-call timeout")
	flag.StringVar(&cfg.manifest, "manifest", "", "Batch manifest JSON file ({videoTitle, ret})")
	flag.StringVar(&cfg.captions, "captions", "", "Caption track JSON file to render as .ass")
	flag.StringVar(&cfg.pageTitle, "page-title", "", "Page title for the .ass header")
	flag.StringVar(&cfg.language, "lang", "", "Caption language label")
	flag.StringVar(&cfg.url, "url", "", "Source URL for the .ass header")
	flag.StringVar(&cfg.out, "out", "", "Output file for the .ass script (default: stdout)")
	debug := flag.Bool("debug", false, "Debug logging")
	flag.Parse()

	if cfg.manifest == "" && cfg.captions == "" {
		fmt.Fprintln(os.Stderr, "Usage: controller (-addr host:port | -etcd endpoints | -spawn ./worker) -manifest batch.json")
		fmt.Fprintln(os.Stderr, "       controller -captions track.json [-page-title t] [-lang l] [-url u] [-out file.ass]")
		os.Exit(1)
	}

	log := zap.NewNop()
	if *debug {
		log, _ = zap.NewDevelopment()
	}
	bridge.SetLogger(log)

	if err := run(cfg, log); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg config, log *zap.Logger) error {
	if cfg.captions != "" {
		if err := renderCaptions(cfg); err != nil {
			return err
		}
	}
	if cfg.manifest == "" {
		return nil
	}

	m, err := readManifest(cfg.manifest)
	if err != nil {
		return err
	}

	ctx := context.Background()
	p, err := connect(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer p.Close()

	c, err := batch.NewClient(ctx, p)
	if err != nil {
		return err
	}
	if err := c.Init(ctx, m); err != nil {
		return fmt.Errorf("init: %w", err)
	}

	title, err := c.Title(ctx)
	if err != nil {
		return fmt.Errorf("title: %w", err)
	}
	entries, err := c.Entries(ctx)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%d parts)\n", title, len(entries))
	for _, e := range entries {
		fmt.Printf("  %3d  %s  %s  %s\n", e.Index, e.ID, e.Title, e.URL)
	}
	return nil
}

func connect(ctx context.Context, cfg config, log *zap.Logger) (*bridge.Proxy, error) {
	ct, err := codec.ParseCodecType(cfg.codec)
	if err != nil {
		return nil, err
	}
	opts := []bridge.Option{
		bridge.WithCodec(ct),
		bridge.WithCallTimeout(cfg.timeout),
		bridge.WithLogger(log),
		bridge.WithRequire(batch.Methods...),
	}

	dialCtx, cancel := context.WithTimeout(ctx, cfg.timeout)
	defer cancel()

	switch {
	case cfg.spawn != "":
		conn, err := spawn(cfg.spawn)
		if err != nil {
			return nil, err
		}
		// a child process has no network in between to keep alive
		return bridge.Connect(dialCtx, conn, append(opts, bridge.WithHeartbeat(0))...)

	case cfg.etcd != "":
		reg, err := registry.NewEtcdRegistry(strings.Split(cfg.etcd, ","), log)
		if err != nil {
			return nil, fmt.Errorf("connect etcd: %w", err)
		}
		defer reg.Close()

		key := cfg.key
		if key == "" {
			key, _ = os.Hostname()
		}
		bal, err := loadbalance.ByName(cfg.balancer, key)
		if err != nil {
			return nil, err
		}
		return bridge.DialService(dialCtx, reg, bal, cfg.service, opts...)

	case cfg.addr != "":
		var d net.Dialer
		conn, err := d.DialContext(dialCtx, "tcp", cfg.addr)
		if err != nil {
			return nil, fmt.Errorf("dial %s: %w", cfg.addr, err)
		}
		return bridge.Connect(dialCtx, conn, opts...)
	}
	return nil, errors.New("one of -addr, -etcd or -spawn is required")
}

// processConn is a worker child process seen as a channel: writes go to its stdin,
// reads come from its stdout.
type processConn struct {
	cmd *exec.Cmd
	io.WriteCloser
	io.ReadCloser
}

func spawn(path string) (*processConn, error) {
	cmd := exec.Command(path, "-stdio")
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start worker: %w", err)
	}
	return &processConn{cmd: cmd, WriteCloser: stdin, ReadCloser: stdout}, nil
}

// Close closes the child's stdin, which ends its serve loop, and waits for it to exit.
func (c *processConn) Close() error {
	c.WriteCloser.Close()
	return c.cmd.Wait()
}

func readManifest(path string) (batch.Manifest, error) {
	var m batch.Manifest
	data, err := os.ReadFile(path)
	if err != nil {
		return m, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &m); err != nil {
		return m, fmt.Errorf("parse manifest: %w", err)
	}
	return m, nil
}

func renderCaptions(cfg config) error {
	raw, err := os.ReadFile(cfg.captions)
	if err != nil {
		return fmt.Errorf("read captions: %w", err)
	}
	var data subtitle.Data
	if err := json.Unmarshal(raw, &data); err != nil {
		return fmt.Errorf("parse captions: %w", err)
	}

	script, err := subtitle.BuildASS(&data, subtitle.Source{
		PageTitle: cfg.pageTitle,
		Language:  cfg.language,
		URL:       cfg.url,
	})
	if err != nil {
		return err
	}
	if cfg.out == "" {
		_, err = fmt.Println(script)
		return err
	}
	return os.WriteFile(cfg.out, []byte(script), 0o644)
}
