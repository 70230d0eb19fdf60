// Package client implements the multi-endpoint dispatcher (C8) on top
// of per-endpoint Server Connections (C7): it resolves one or more
// memcached-compatible endpoints, pools a conn per endpoint, and
// dispatches each call to one endpoint chosen by weighted random
// selection.
package client

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/nkyo/gocached/logger"
	"github.com/nkyo/gocached/pool"
	"github.com/nkyo/gocached/record"
	"github.com/nkyo/gocached/utils"
)

// Endpoint is one server location and its dispatch weight.
type Endpoint struct {
	Addr   string
	Weight int
}

// envConfig holds the env-driven server discovery settings.
type envConfig struct {
	HeadlessServiceAddress string   `envconfig:"MEMCACHED_HEADLESS_SERVICE_ADDRESS"`
	Servers                []string `envconfig:"MEMCACHED_SERVERS"`
	MemcachedPort          int      `envconfig:"MEMCACHED_PORT" default:"11211"`
}

// Client dispatches each operation to one of its configured endpoints
// by weighted random selection. It is safe for concurrent use by
// multiple goroutines.
type Client struct {
	cfg      *config
	selector *weightedSelector

	mu    sync.RWMutex
	pools map[string]*pool.Pool

	ctx    context.Context
	cancel context.CancelFunc
}

// New resolves locations (a "host:port" string, a []string of those,
// or a map[string]int of location to weight) into Endpoints and
// builds a connection pool for each, in parallel.
func New(locations any, opts ...Option) (*Client, error) {
	endpoints, err := ParseEndpoints(locations)
	if err != nil {
		return nil, err
	}
	return newClient(endpoints, opts...)
}

// InitFromEnv builds a Client from MEMCACHED_SERVERS or
// MEMCACHED_HEADLESS_SERVICE_ADDRESS/MEMCACHED_PORT.
func InitFromEnv(opts ...Option) (*Client, error) {
	var cfg envConfig
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("%s: client init err: %w", libPrefix, err)
	}

	if cfg.HeadlessServiceAddress == "" && len(cfg.Servers) == 0 {
		return nil, ErrNotConfigured
	}

	var locations []string
	if cfg.HeadlessServiceAddress != "" {
		locations = append(locations, fmt.Sprintf("%s:%d", cfg.HeadlessServiceAddress, cfg.MemcachedPort))
	}
	locations = append(locations, cfg.Servers...)

	endpoints, err := ParseEndpoints(locations)
	if err != nil {
		return nil, err
	}
	return newClient(endpoints, opts...)
}

// ParseEndpoints normalizes locations into Endpoints. Weights default
// to 1; listing the same "host:port" string multiple times in a
// []string gives that server a proportional amount of weight.
func ParseEndpoints(locations any) ([]Endpoint, error) {
	switch v := locations.(type) {
	case string:
		return []Endpoint{{Addr: v, Weight: 1}}, nil
	case []string:
		weights := make(map[string]int)
		order := make([]string, 0, len(v))
		for _, addr := range v {
			if _, ok := weights[addr]; !ok {
				order = append(order, addr)
			}
			weights[addr]++
		}
		out := make([]Endpoint, 0, len(order))
		for _, addr := range order {
			out = append(out, Endpoint{Addr: addr, Weight: weights[addr]})
		}
		return out, nil
	case map[string]int:
		out := make([]Endpoint, 0, len(v))
		for addr, weight := range v {
			out = append(out, Endpoint{Addr: addr, Weight: weight})
		}
		return out, nil
	default:
		return nil, fmt.Errorf("%s: %w: unsupported locations type %T", libPrefix, ErrInvalidAddr, locations)
	}
}

func newClient(endpoints []Endpoint, opts ...Option) (*Client, error) {
	if len(endpoints) == 0 {
		return nil, ErrNoServers
	}

	cfg := newConfig(opts...)
	if cfg.disableLogger {
		logger.DisableLogger()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{
		cfg:      cfg,
		selector: newWeightedSelector(),
		pools:    make(map[string]*pool.Pool),
		ctx:      ctx,
		cancel:   cancel,
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		dialErr error
	)
	for _, ep := range endpoints {
		ep := ep
		wg.Add(1)
		go func() {
			defer wg.Done()
			addr, err := utils.AddrRepr(ep.Addr)
			if err != nil {
				mu.Lock()
				dialErr = fmt.Errorf("%w: %s", ErrInvalidAddr, err.Error())
				mu.Unlock()
				return
			}
			c.selector.AddWithWeight(addr.String(), ep.Weight)
			c.mu.Lock()
			c.pools[addr.String()] = c.newPool(addr.String())
			c.mu.Unlock()
		}()
	}
	wg.Wait()

	if dialErr != nil {
		return nil, dialErr
	}
	return c, nil
}

func (c *Client) newPool(addr string) *pool.Pool {
	dial := func() (any, error) {
		return dialConn(addr, c.cfg.timeout, c.cfg.delay)
	}
	closeFn := func(v any) {
		v.(*conn).close()
	}
	return pool.New(c.ctx, int32(c.cfg.maxIdleConns), DefaultSocketPoolingTimeout, dial, closeFn)
}

// DefaultSocketPoolingTimeout is how long Get waits to acquire a
// pooled connection before giving up.
const DefaultSocketPoolingTimeout = 50 * time.Millisecond

func (c *Client) observe(method string, start time.Time, err error) {
	if c.cfg.disableDiagnostic {
		return
	}
	observeMethodDurationSeconds(method, time.Since(start).Seconds(), err == nil)
}

// withConn picks an endpoint by weighted random selection, borrows a
// conn from its pool, runs fn, and returns the conn to the pool (or
// closes it) depending on whether the error was only a protocol-level
// response. There is no automatic retry against another endpoint.
func (c *Client) withConn(fn func(*conn) error) error {
	addr, err := c.selector.Pick()
	if err != nil {
		return err
	}

	c.mu.RLock()
	p, ok := c.pools[addr]
	c.mu.RUnlock()
	if !ok {
		return ErrNoServers
	}

	raw, err := p.Get()
	if err != nil {
		return fmt.Errorf("%s: get from pool: %w", libPrefix, err)
	}
	cn := raw.(*conn)

	err = fn(cn)
	if cn.condRelease(&err) {
		p.Put(cn)
	} else {
		p.Close(cn)
	}
	return err
}

// Get retrieves the live value stored at key.
func (c *Client) Get(key string) ([]byte, uint32, error) {
	start := time.Now()
	var (
		value []byte
		flags uint32
	)
	err := c.withConn(func(cn *conn) error {
		var opErr error
		value, flags, opErr = cn.Get(key)
		return opErr
	})
	c.observe("get", start, err)
	return value, flags, err
}

// Set unconditionally stores value at key.
func (c *Client) Set(key string, value []byte, exptime int64) error {
	start := time.Now()
	err := c.withConn(func(cn *conn) error { return cn.Set(key, value, exptime) })
	c.observe("set", start, err)
	return err
}

// SetItem stores an arbitrary in-process value at key: strings and
// []byte go over the wire byte-identical, everything else is
// JSON-serialized first.
func (c *Client) SetItem(key string, value any, exptime int64) error {
	b, err := record.MarshalValue(value)
	if err != nil {
		return err
	}
	return c.Set(key, b, exptime)
}

// GetItem retrieves key as an in-process value: payloads that look
// like a JSON object are decoded back, everything else comes back as
// a string.
func (c *Client) GetItem(key string) (any, error) {
	b, _, err := c.Get(key)
	if err != nil {
		return nil, err
	}
	return record.UnmarshalValue(b), nil
}

// Add stores value at key only if key is absent.
func (c *Client) Add(key string, value []byte, exptime int64) error {
	start := time.Now()
	err := c.withConn(func(cn *conn) error { return cn.Add(key, value, exptime) })
	c.observe("add", start, err)
	return err
}

// Replace stores value at key only if key is present.
func (c *Client) Replace(key string, value []byte, exptime int64) error {
	start := time.Now()
	err := c.withConn(func(cn *conn) error { return cn.Replace(key, value, exptime) })
	c.observe("replace", start, err)
	return err
}

// Append concatenates data onto the existing value at key.
func (c *Client) Append(key string, data []byte) error {
	start := time.Now()
	err := c.withConn(func(cn *conn) error { return cn.Append(key, data) })
	c.observe("append", start, err)
	return err
}

// Prepend concatenates data before the existing value at key.
func (c *Client) Prepend(key string, data []byte) error {
	start := time.Now()
	err := c.withConn(func(cn *conn) error { return cn.Prepend(key, data) })
	c.observe("prepend", start, err)
	return err
}

// Delete removes key.
func (c *Client) Delete(key string) error {
	start := time.Now()
	err := c.withConn(func(cn *conn) error { return cn.Delete(key) })
	c.observe("delete", start, err)
	return err
}

// Incr adds delta to the numeric value stored at key.
func (c *Client) Incr(key string, delta uint64) (uint64, error) {
	start := time.Now()
	var n uint64
	err := c.withConn(func(cn *conn) error {
		var opErr error
		n, opErr = cn.Incr(key, delta)
		return opErr
	})
	c.observe("incr", start, err)
	return n, err
}

// Decr subtracts delta from the numeric value stored at key,
// saturating at zero.
func (c *Client) Decr(key string, delta uint64) (uint64, error) {
	start := time.Now()
	var n uint64
	err := c.withConn(func(cn *conn) error {
		var opErr error
		n, opErr = cn.Decr(key, delta)
		return opErr
	})
	c.observe("decr", start, err)
	return n, err
}

// Touch updates key's expiration without altering its value.
func (c *Client) Touch(key string, exptime int64) error {
	start := time.Now()
	err := c.withConn(func(cn *conn) error { return cn.Touch(key, exptime) })
	c.observe("touch", start, err)
	return err
}

// Stats fetches the stats map from one endpoint chosen by weighted
// random selection; results are not aggregated across endpoints.
func (c *Client) Stats() (map[string]string, error) {
	start := time.Now()
	var stats map[string]string
	err := c.withConn(func(cn *conn) error {
		var opErr error
		stats, opErr = cn.Stats()
		return opErr
	})
	c.observe("stats", start, err)
	return stats, err
}

// Flush empties one endpoint's cache.
func (c *Client) Flush() error {
	start := time.Now()
	err := c.withConn(func(cn *conn) error { return cn.Flush() })
	c.observe("flush", start, err)
	return err
}

// Version reports one endpoint's version string.
func (c *Client) Version() (string, error) {
	start := time.Now()
	var v string
	err := c.withConn(func(cn *conn) error {
		var opErr error
		v, opErr = cn.Version()
		return opErr
	})
	c.observe("version", start, err)
	return v, err
}

// Endpoints returns every registered endpoint address.
func (c *Client) Endpoints() []string {
	return c.selector.GetAllNodes()
}

// End closes every live connection, draining the per-endpoint pools
// in parallel, and returns once all closes have completed.
func (c *Client) End() {
	c.cancel()

	c.mu.Lock()
	pools := make([]*pool.Pool, 0, len(c.pools))
	for _, p := range c.pools {
		pools = append(pools, p)
	}
	c.mu.Unlock()

	var wg sync.WaitGroup
	for _, p := range pools {
		p := p
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.Destroy()
		}()
	}
	wg.Wait()
}
