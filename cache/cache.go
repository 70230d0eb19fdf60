// Package cache implements the in-process key/value store shared by
// the embeddable cache and the TCP server: a mutex-guarded map of
// record.Record values with memcached-compatible semantics for
// get/set/add/replace/append/prepend/delete/incr/decr/touch, plus
// count- and size-bounded eviction.
package cache

import (
	"os"
	"runtime"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/exp/maps"
	"golang.org/x/exp/slices"

	"github.com/nkyo/gocached/logger"
	"github.com/nkyo/gocached/record"
)

// Version is reported by the version command and the stats map.
const Version = "1.6.0"

const maxKeyLen = 250

// Cache is a bounded, concurrency-safe store of record.Record values.
// Its mutating operations (set/add/replace/append/prepend/delete/
// touch) trigger an asynchronous, coalesced purge sweep rather than
// evicting inline, so callers never block on eviction; incr/decr do
// not trigger one.
type Cache struct {
	mu      sync.Mutex
	records map[string]*record.Record

	cfg *config

	purgeCh   chan struct{}
	purgeOnce sync.Once
	stopCh    chan struct{}

	startedAt time.Time

	cmdGet    atomic.Uint64
	cmdSet    atomic.Uint64
	getHits   atomic.Uint64
	getMisses atomic.Uint64
	evicted   atomic.Uint64
	totalItem atomic.Uint64

	verbosityLvl atomic.Int32
}

// New constructs a Cache bounded per bound (ByMaxRecords, ByMaxSizeMb,
// or Unbounded) and starts its background purge loop.
func New(bound Bound, opts ...Option) *Cache {
	c := &Cache{
		records:   make(map[string]*record.Record),
		cfg:       newConfig(bound, opts...),
		purgeCh:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		startedAt: time.Now(),
	}
	go c.purgeLoop()
	return c
}

// Close stops the background purge loop. It does not clear stored
// records.
func (c *Cache) Close() {
	c.purgeOnce.Do(func() { close(c.stopCh) })
}

func (c *Cache) logDebugf(format string, args ...any) {
	if c.cfg.disableLogger {
		return
	}
	logger.Debugf(format, args...)
}

func (c *Cache) observe(method string, start time.Time, err error) {
	if c.cfg.disableDiagnostic {
		return
	}
	observeMethodDurationSeconds(method, time.Since(start).Seconds(), err == nil)
}

func validateKey(key string) error {
	if len(key) == 0 || len(key) > maxKeyLen {
		return ErrMalformedKey
	}
	for _, r := range key {
		if r <= ' ' || r == 0x7f {
			return ErrMalformedKey
		}
	}
	return nil
}

func nowMs() int64 {
	return time.Now().UnixMilli()
}

// Get returns the live value stored at key, or ErrCacheMiss if absent
// or expired.
func (c *Cache) Get(key string) ([]byte, uint32, error) {
	r, err := c.GetRecord(key)
	if err != nil {
		return nil, 0, err
	}
	return r.Value, r.Flags, nil
}

// GetRecord is Get, returning the full record.Record (Get is built on
// it).
func (c *Cache) GetRecord(key string) (*record.Record, error) {
	start := time.Now()
	c.cmdGet.Add(1)

	c.mu.Lock()
	r, ok := c.records[key]
	c.mu.Unlock()

	if !ok || !r.IsValid(nowMs()) {
		c.getMisses.Add(1)
		c.observe("get", start, ErrCacheMiss)
		return nil, ErrCacheMiss
	}
	c.getHits.Add(1)
	c.observe("get", start, nil)
	return r, nil
}

// Set unconditionally stores value at key, replacing anything present.
func (c *Cache) Set(key string, value []byte, flags uint32, expirationSeconds int64) error {
	start := time.Now()
	if err := validateKey(key); err != nil {
		c.observe("set", start, err)
		return err
	}

	r := record.New(value, expirationSeconds, flags)

	c.mu.Lock()
	c.records[key] = r
	c.mu.Unlock()

	c.cmdSet.Add(1)
	c.recordStored()
	c.triggerPurge()
	c.observe("set", start, nil)
	return nil
}

// recordStored bumps the monotonic total-items counter on a
// successful store, for both the wire-level stats map and Prometheus.
func (c *Cache) recordStored() {
	c.totalItem.Add(1)
	if !c.cfg.disableDiagnostic {
		totalItemsTotal.Inc()
	}
}

// Add stores value at key only if key is not already present (and
// live). Returns ErrNotStored otherwise.
func (c *Cache) Add(key string, value []byte, flags uint32, expirationSeconds int64) error {
	start := time.Now()
	if err := validateKey(key); err != nil {
		c.observe("add", start, err)
		return err
	}

	r := record.New(value, expirationSeconds, flags)
	now := nowMs()

	c.mu.Lock()
	if existing, ok := c.records[key]; ok && existing.IsValid(now) {
		c.mu.Unlock()
		c.observe("add", start, ErrNotStored)
		return ErrNotStored
	}
	c.records[key] = r
	c.mu.Unlock()

	c.cmdSet.Add(1)
	c.recordStored()
	c.triggerPurge()
	c.observe("add", start, nil)
	return nil
}

// Replace stores value at key only if key is already present (and
// live). Returns ErrNotStored otherwise.
func (c *Cache) Replace(key string, value []byte, flags uint32, expirationSeconds int64) error {
	start := time.Now()
	if err := validateKey(key); err != nil {
		c.observe("replace", start, err)
		return err
	}

	now := nowMs()

	c.mu.Lock()
	existing, ok := c.records[key]
	if !ok || !existing.IsValid(now) {
		c.mu.Unlock()
		c.observe("replace", start, ErrNotStored)
		return ErrNotStored
	}
	c.records[key] = record.New(value, expirationSeconds, flags)
	c.mu.Unlock()

	c.cmdSet.Add(1)
	c.recordStored()
	c.triggerPurge()
	c.observe("replace", start, nil)
	return nil
}

// Append concatenates data to the existing value at key without
// altering its flags or expiration. Returns ErrNotStored if key is
// absent or expired.
func (c *Cache) Append(key string, data []byte) error {
	return c.concat(key, data, false)
}

// Prepend concatenates data before the existing value at key without
// altering its flags or expiration. Returns ErrNotStored if key is
// absent or expired.
func (c *Cache) Prepend(key string, data []byte) error {
	return c.concat(key, data, true)
}

func (c *Cache) concat(key string, data []byte, before bool) error {
	method := "append"
	if before {
		method = "prepend"
	}
	start := time.Now()
	now := nowMs()

	c.mu.Lock()
	existing, ok := c.records[key]
	if !ok || !existing.IsValid(now) {
		c.mu.Unlock()
		c.observe(method, start, ErrNotStored)
		return ErrNotStored
	}
	var merged []byte
	if before {
		merged = append(append([]byte{}, data...), existing.Value...)
	} else {
		merged = append(append([]byte{}, existing.Value...), data...)
	}
	c.records[key] = &record.Record{
		Value:      merged,
		Flags:      existing.Flags,
		Expiration: existing.Expiration,
	}
	c.mu.Unlock()

	c.cmdSet.Add(1)
	c.triggerPurge()
	c.observe(method, start, nil)
	return nil
}

// Delete removes key. Returns ErrCacheMiss if key was absent or
// already expired.
func (c *Cache) Delete(key string) error {
	start := time.Now()
	now := nowMs()

	c.mu.Lock()
	existing, ok := c.records[key]
	if ok {
		delete(c.records, key)
	}
	c.mu.Unlock()

	if !ok || !existing.IsValid(now) {
		c.observe("delete", start, ErrCacheMiss)
		return ErrCacheMiss
	}
	c.triggerPurge()
	c.observe("delete", start, nil)
	return nil
}

// Incr adds delta to the numeric value stored at key and returns the
// new value. The stored value must parse as a base-10 uint64;
// otherwise ErrNonNumeric is returned.
func (c *Cache) Incr(key string, delta uint64) (uint64, error) {
	return c.incrDecr("incr", key, delta, true)
}

// Decr subtracts delta from the numeric value stored at key,
// saturating at zero, and returns the new value.
func (c *Cache) Decr(key string, delta uint64) (uint64, error) {
	return c.incrDecr("decr", key, delta, false)
}

func (c *Cache) incrDecr(method, key string, delta uint64, positive bool) (uint64, error) {
	start := time.Now()
	now := nowMs()

	c.mu.Lock()
	defer c.mu.Unlock()

	existing, ok := c.records[key]
	if !ok || !existing.IsValid(now) {
		c.observe(method, start, ErrCacheMiss)
		return 0, ErrCacheMiss
	}

	cur, err := strconv.ParseUint(string(existing.Value), 10, 64)
	if err != nil {
		c.observe(method, start, ErrNonNumeric)
		return 0, ErrNonNumeric
	}

	var next uint64
	if positive {
		next = cur + delta
	} else if delta > cur {
		next = 0
	} else {
		next = cur - delta
	}

	c.records[key] = &record.Record{
		Value:      []byte(strconv.FormatUint(next, 10)),
		Flags:      existing.Flags,
		Expiration: existing.Expiration,
	}

	c.observe(method, start, nil)
	return next, nil
}

// Touch updates key's expiration without altering its value or flags.
// Returns ErrCacheMiss if key is absent or already expired.
func (c *Cache) Touch(key string, expirationSeconds int64) error {
	start := time.Now()
	now := nowMs()

	c.mu.Lock()
	existing, ok := c.records[key]
	if !ok || !existing.IsValid(now) {
		c.mu.Unlock()
		c.observe("touch", start, ErrCacheMiss)
		return ErrCacheMiss
	}
	refreshed := record.New(existing.Value, expirationSeconds, existing.Flags)
	c.records[key] = refreshed
	c.mu.Unlock()

	c.triggerPurge()
	c.observe("touch", start, nil)
	return nil
}

// FlushAll is Flush with support for a deferred delay, matching the
// memcached flush_all [delay] syntax; a delay of 0 flushes immediately.
func (c *Cache) FlushAll(delaySeconds int64) error {
	if delaySeconds <= 0 {
		return c.Flush()
	}
	time.AfterFunc(time.Duration(delaySeconds)*time.Second, func() {
		_ = c.Flush()
	})
	return nil
}

// Flush immediately removes every record in the cache.
func (c *Cache) Flush() error {
	c.mu.Lock()
	c.records = make(map[string]*record.Record)
	c.mu.Unlock()
	return nil
}

// Version returns the cache's reported "<appname>-<semver>" string.
func (c *Cache) Version() string {
	return libPrefix + "-" + Version
}

// Verbosity is a no-op preserved for protocol compatibility: real
// memcached servers use it to toggle server-side logging verbosity,
// which gocached instead controls via its own logger configuration.
func (c *Cache) Verbosity(level int32) {
	c.verbosityLvl.Store(level)
}

// Stats returns the memcached-compatible stats map (pid, uptime,
// time, version, curr_items, total_items, bytes, max_bytes, tcpport,
// num_threads, cas_enabled, evictions), plus gocached-specific extras
// (cmd_get, cmd_set, get_hits, get_misses) for operational visibility.
func (c *Cache) Stats() map[string]string {
	c.mu.Lock()
	currItems := len(c.records)
	c.mu.Unlock()

	var maxBytes uint64
	if b, ok := c.cfg.bound.(SizeMbBound); ok {
		maxBytes = uint64(b.MaxSizeMb) * 1024 * 1024
	}

	return map[string]string{
		"pid":         strconv.Itoa(pid),
		"uptime":      strconv.FormatInt(int64(time.Since(c.startedAt).Seconds()), 10),
		"time":        strconv.FormatInt(time.Now().Unix(), 10),
		"version":     libPrefix + "-" + Version,
		"curr_items":  strconv.Itoa(currItems),
		"total_items": strconv.FormatUint(c.totalItem.Load(), 10),
		"bytes":       strconv.FormatUint(c.sampleSizeBytes(), 10),
		"max_bytes":   strconv.FormatUint(maxBytes, 10),
		"tcpport":     strconv.Itoa(c.cfg.port),
		"num_threads": "1",
		"cas_enabled": "no",
		"evictions":   "on",
		"cmd_get":     strconv.FormatUint(c.cmdGet.Load(), 10),
		"cmd_set":     strconv.FormatUint(c.cmdSet.Load(), 10),
		"get_hits":    strconv.FormatUint(c.getHits.Load(), 10),
		"get_misses":  strconv.FormatUint(c.getMisses.Load(), 10),
	}
}

func (c *Cache) sampleSizeBytes() uint64 {
	var sum uint64
	c.mu.Lock()
	for _, r := range c.records {
		sum += uint64(r.SizeBytes())
	}
	c.mu.Unlock()
	return sum
}

func (c *Cache) triggerPurge() {
	select {
	case c.purgeCh <- struct{}{}:
	default:
	}
}

func (c *Cache) purgeLoop() {
	ticker := time.NewTicker(c.cfg.purgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-c.stopCh:
			return
		case <-c.purgeCh:
			c.purgeExpired()
			c.purgeBound()
		case <-ticker.C:
			c.purgeExpired()
			c.purgeBound()
		}
	}
}

// purgeExpired removes every record whose expiration has passed. It
// runs unconditionally regardless of the configured Bound.
func (c *Cache) purgeExpired() {
	now := nowMs()
	var removed int

	c.mu.Lock()
	for k, r := range c.records {
		if !r.IsValid(now) {
			delete(c.records, k)
			removed++
		}
	}
	c.mu.Unlock()

	if removed > 0 {
		c.evicted.Add(uint64(removed))
		if !c.cfg.disableDiagnostic {
			evictionsTotal.Add(float64(removed))
		}
		c.logDebugf("purge: removed %d expired records", removed)
	}
}

// purgeBound runs the capacity eviction pass of the configured Bound:
// a count-bound pass for RecordCountBound, or a size-bound pass
// sampling the Go heap (HeapAlloc, not process RSS) for SizeMbBound.
// Only one of the two ever runs for a given Cache. Eviction order is
// oldest-expiration-first; records with no expiration are evicted last.
func (c *Cache) purgeBound() {
	switch b := c.cfg.bound.(type) {
	case RecordCountBound:
		c.purgeByCount(b.MaxRecords)
	case SizeMbBound:
		c.purgeBySize(b.MaxSizeMb)
	case UnboundedBound:
		return
	}
	if !c.cfg.disableDiagnostic {
		c.mu.Lock()
		itemsGauge.Set(float64(len(c.records)))
		c.mu.Unlock()
	}
}

func (c *Cache) purgeByCount(maxRecords int) {
	c.mu.Lock()
	over := len(c.records) - maxRecords
	if over <= 0 {
		c.mu.Unlock()
		return
	}
	keys := oldestFirst(c.records)
	for i := 0; i < over && i < len(keys); i++ {
		delete(c.records, keys[i])
	}
	c.mu.Unlock()

	c.evicted.Add(uint64(over))
	if !c.cfg.disableDiagnostic {
		evictionsTotal.Add(float64(over))
	}
	c.logDebugf("purge: evicted %d records over count bound", over)
}

func (c *Cache) purgeBySize(maxSizeMb int) {
	maxBytes := uint64(maxSizeMb) * 1024 * 1024

	if heapAllocBytes() <= maxBytes {
		return
	}

	// purgeExpired already dropped invalid records; reclaim their
	// space before deciding whether live records must go too.
	runtime.GC()

	var evicted int
	for heapAllocBytes() > maxBytes {
		c.mu.Lock()
		keys := oldestFirst(c.records)
		if len(keys) == 0 {
			c.mu.Unlock()
			break
		}
		// Evict a tenth of the cache per round, then collect and
		// re-read: HeapAlloc only moves after a GC, so per-record
		// re-reads would observe stale numbers and never stop.
		n := len(keys)/10 + 1
		for _, k := range keys[:n] {
			delete(c.records, k)
		}
		c.mu.Unlock()
		evicted += n
		runtime.GC()
	}

	if evicted > 0 {
		c.evicted.Add(uint64(evicted))
		if !c.cfg.disableDiagnostic {
			evictionsTotal.Add(float64(evicted))
		}
		c.logDebugf("purge: evicted %d records over size bound (%d MB)", evicted, maxSizeMb)
	}
}

func heapAllocBytes() uint64 {
	var mem runtime.MemStats
	runtime.ReadMemStats(&mem)
	return mem.HeapAlloc
}

// oldestFirst returns m's keys ordered by ascending expiration, with
// never-expiring records (Expiration == record.Never) sorted last.
// Callers must hold c.mu.
func oldestFirst(m map[string]*record.Record) []string {
	keys := maps.Keys(m)
	slices.SortFunc(keys, func(a, b string) int {
		ea, eb := m[a].Expiration, m[b].Expiration
		switch {
		case ea == eb:
			return 0
		case ea == record.Never:
			return 1
		case eb == record.Never:
			return -1
		case ea < eb:
			return -1
		default:
			return 1
		}
	})
	return keys
}

var pid = os.Getpid()
