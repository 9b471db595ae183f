// Loadtest opens concurrent TCP sessions through the load balancer and
// reports how they were distributed across backends. It expects backends that
// greet with their name on the first line (see scripts/backend).
//
// Usage:
//
//	go run ./scripts/loadtest -addr localhost:18860 -sessions 100 -concurrency 10
package main

import (
	"bufio"
	"flag"
	"fmt"
	"net"
	"sort"
	"sync"
	"time"
)

func main() {
	addr := flag.String("addr", "localhost:18860", "load balancer address")
	sessions := flag.Int("sessions", 100, "total sessions to open")
	concurrency := flag.Int("concurrency", 10, "concurrent workers")
	timeout := flag.Duration("timeout", 5*time.Second, "per-session timeout")
	flag.Parse()

	var (
		mutex    sync.Mutex
		counts   = make(map[string]int)
		failures int
	)

	work := make(chan struct{}, *sessions)
	for i := 0; i < *sessions; i++ {
		work <- struct{}{}
	}
	close(work)

	start := time.Now()

	var wg sync.WaitGroup
	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range work {
				name, err := runSession(*addr, *timeout)
				mutex.Lock()
				if err != nil {
					failures++
				} else {
					counts[name]++
				}
				mutex.Unlock()
			}
		}()
	}
	wg.Wait()

	elapsed := time.Since(start)

	names := make([]string, 0, len(counts))
	total := 0
	for name, n := range counts {
		names = append(names, name)
		total += n
	}
	sort.Strings(names)

	fmt.Printf("sessions: %d ok, %d failed in %s\n", total, failures, elapsed.Round(time.Millisecond))
	if total == 0 {
		return
	}
	for _, name := range names {
		fmt.Printf("  %-12s %4d (%.1f%%)\n", name, counts[name], 100*float64(counts[name])/float64(total))
	}
}

// runSession opens one connection, reads the backend greeting, round-trips
// one echo line and returns the backend name that served it.
func runSession(addr string, timeout time.Duration) (string, error) {
	conn, err := net.DialTimeout("tcp", addr, timeout)
	if err != nil {
		return "", err
	}
	defer conn.Close()

	conn.SetDeadline(time.Now().Add(timeout))

	reader := bufio.NewReader(conn)
	name, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("reading greeting: %w", err)
	}
	name = name[:len(name)-1]

	if _, err := fmt.Fprintf(conn, "ping\n"); err != nil {
		return "", err
	}
	if _, err := reader.ReadString('\n'); err != nil {
		return "", fmt.Errorf("reading echo: %w", err)
	}

	return name, nil
}
