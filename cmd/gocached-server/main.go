// Command gocached-server runs a standalone memcached-wire-compatible
// cache server.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap/zapcore"

	"github.com/nkyo/gocached/cache"
	"github.com/nkyo/gocached/logger"
	"github.com/nkyo/gocached/server"
)

const usage = `gocached-server: a memcached-wire-compatible cache server.

Usage:
  gocached-server [flags]

Flags:
  -p <port>     TCP port to listen on (default 11211)
  -max-items    maximum live record count, 0 disables count-bound eviction
  -max-size-mb  maximum Go heap footprint in MB, 0 disables size-bound eviction
  -v            info-level logging
  -vv           debug-level logging
  -vvv          debug-level logging with caller info (same as -vv here)
  --delay       enable Nagle's algorithm on accepted connections
  --fast        reply ERROR to every request without touching the cache
  -h, --help    show this help text
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("gocached-server", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	port := fs.Int("p", server.DefaultPort, "TCP port to listen on")
	maxItems := fs.Int("max-items", 0, "maximum live record count (0 = unbounded)")
	maxSizeMb := fs.Int("max-size-mb", 0, "maximum Go heap size in MB (0 = unbounded)")
	verbose1 := fs.Bool("v", false, "info-level logging")
	verbose2 := fs.Bool("vv", false, "debug-level logging")
	verbose3 := fs.Bool("vvv", false, "debug-level logging")
	delay := fs.Bool("delay", false, "enable Nagle's algorithm")
	fast := fs.Bool("fast", false, "reply ERROR to every request")

	if err := fs.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return 1
		}
		return 1
	}

	switch {
	case *verbose2 || *verbose3:
		logger.SetLevel(zapcore.DebugLevel)
	case *verbose1:
		logger.SetLevel(zapcore.InfoLevel)
	default:
		logger.SetLevel(zapcore.WarnLevel)
	}

	bound := resolveBound(*maxItems, *maxSizeMb)

	c := cache.New(bound, cache.WithPort(*port))
	defer c.Close()

	opts := []server.Option{server.WithPort(*port)}
	if *delay {
		opts = append(opts, server.WithDelay())
	}
	if *fast {
		opts = append(opts, server.WithFast())
	}
	s := server.New(c, opts...)

	if err := s.Start(); err != nil {
		logger.Errorf("gocached-server: %v", err)
		return 2
	}
	logger.Infof("gocached-server: listening on %s", s.Addr())

	waitForShutdown()

	if err := s.Stop(); err != nil {
		logger.Errorf("gocached-server: shutdown: %v", err)
		return 2
	}
	return 0
}

func resolveBound(maxItems, maxSizeMb int) cache.Bound {
	switch {
	case maxItems > 0:
		return cache.ByMaxRecords(maxItems)
	case maxSizeMb > 0:
		return cache.ByMaxSizeMb(maxSizeMb)
	default:
		return cache.Unbounded()
	}
}

func waitForShutdown() {
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
}
