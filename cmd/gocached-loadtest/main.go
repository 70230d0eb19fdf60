// Command gocached-loadtest is a thin load-test driver for a running
// gocached (or any memcached-wire-compatible) server: it fires
// concurrent set/get loops through the client package and reports
// latency percentiles.
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/nkyo/gocached/client"
)

const usage = `gocached-loadtest: fire concurrent set/get loops at a cache server.

Usage:
  gocached-loadtest -servers host1:port1,host2:port2 [flags]

Flags:
  -servers     comma-separated list of host:port endpoints (required)
  -conns       number of concurrent worker goroutines (default 16)
  -requests    total set+get pairs issued per worker (default 1000)
  -value-size  size in bytes of the value written by each set (default 64)
  -h, --help   show this help text
`

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("gocached-loadtest", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	fs.Usage = func() { fmt.Fprint(os.Stderr, usage) }

	servers := fs.String("servers", "", "comma-separated host:port endpoints")
	conns := fs.Int("conns", 16, "number of concurrent worker goroutines")
	requests := fs.Int("requests", 1000, "set+get pairs per worker")
	valueSize := fs.Int("value-size", 64, "value size in bytes")

	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *servers == "" {
		fmt.Fprintln(os.Stderr, "gocached-loadtest: -servers is required")
		fs.Usage()
		return 1
	}

	endpoints := strings.Split(*servers, ",")
	cl, err := client.New(endpoints, client.WithDisableLogger())
	if err != nil {
		fmt.Fprintf(os.Stderr, "gocached-loadtest: %v\n", err)
		return 2
	}
	defer cl.End()

	durations := runWorkers(cl, *conns, *requests, *valueSize)
	report(durations)
	return 0
}

func runWorkers(cl *client.Client, numWorkers, requestsPerWorker, valueSize int) []time.Duration {
	var (
		mu  sync.Mutex
		wg  sync.WaitGroup
		all []time.Duration
	)

	value := make([]byte, valueSize)
	for i := range value {
		value[i] = byte('a' + i%26)
	}

	for w := 0; w < numWorkers; w++ {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(w) + 1))
			local := make([]time.Duration, 0, requestsPerWorker*2)
			for i := 0; i < requestsPerWorker; i++ {
				key := fmt.Sprintf("loadtest:%d:%d", w, rng.Intn(1000))

				start := time.Now()
				_ = cl.Set(key, value, 60)
				local = append(local, time.Since(start))

				start = time.Now()
				_, _, _ = cl.Get(key)
				local = append(local, time.Since(start))
			}
			mu.Lock()
			all = append(all, local...)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return all
}

func report(durations []time.Duration) {
	if len(durations) == 0 {
		fmt.Println("no requests issued")
		return
	}
	sort.Slice(durations, func(i, j int) bool { return durations[i] < durations[j] })

	percentile := func(p float64) time.Duration {
		idx := int(p * float64(len(durations)-1))
		return durations[idx]
	}

	fmt.Printf("requests: %d\n", len(durations))
	fmt.Printf("p50: %s\n", percentile(0.50))
	fmt.Printf("p90: %s\n", percentile(0.90))
	fmt.Printf("p99: %s\n", percentile(0.99))
	fmt.Printf("max: %s\n", durations[len(durations)-1])
}
