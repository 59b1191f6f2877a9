package batch

import (
	"context"
	"fmt"

	"worker-rpc/bridge"
)

// Methods lists the wire names a batch worker must expose.
var Methods = []string{"init", "getInfo", "count", "title"}

// Client is the typed controller-side view of a batch Worker.
type Client struct {
	p *bridge.Proxy
}

// NewClient waits for the proxy to learn the worker's methods and checks that the
// worker is a batch worker.
func NewClient(ctx context.Context, p *bridge.Proxy) (*Client, error) {
	if err := p.Ready(ctx); err != nil {
		return nil, err
	}
	if err := p.Require(Methods...); err != nil {
		return nil, fmt.Errorf("batch: %w", err)
	}
	return &Client{p: p}, nil
}

// Init hands the manifest to the worker. The worker does not answer Init, so this
// returns once the call has been written; later calls see the new batch as long as
// the worker dispatches serially, which is the endpoint default.
func (c *Client) Init(ctx context.Context, m Manifest) error {
	return c.p.Notify(ctx, "init", m)
}

func (c *Client) GetInfo(ctx context.Context, index int) (*Entry, error) {
	var e Entry
	if err := c.p.Call(ctx, "getInfo", &e, index); err != nil {
		return nil, err
	}
	return &e, nil
}

func (c *Client) Count(ctx context.Context) (int, error) {
	var n int
	err := c.p.Call(ctx, "count", &n)
	return n, err
}

func (c *Client) Title(ctx context.Context) (string, error) {
	var title string
	err := c.p.Call(ctx, "title", &title)
	return title, err
}

// Entries fetches every entry in order.
func (c *Client) Entries(ctx context.Context) ([]Entry, error) {
	n, err := c.Count(ctx)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, n)
	for i := 0; i < n; i++ {
		e, err := c.GetInfo(ctx, i)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", i, err)
		}
		entries = append(entries, *e)
	}
	return entries, nil
}
