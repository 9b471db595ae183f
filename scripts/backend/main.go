// Backend is a stand-in TCP worker used for load balancer testing.
// It accepts connections, announces its name on a greeting line, then echoes
// every subsequent line back. Accepting alone is enough to pass the load
// balancer's health probes.
//
// Usage:
//
//	go run ./scripts/backend -port 18861 -name server1
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log"
	"net"
)

func main() {
	port := flag.Int("port", 18861, "port to listen on")
	name := flag.String("name", "server1", "backend name sent in the greeting")
	flag.Parse()

	addr := fmt.Sprintf(":%d", *port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		log.Fatalf("listen %s: %v", addr, err)
	}
	defer ln.Close()

	log.Printf("backend %s listening on %s", *name, addr)

	for {
		conn, err := ln.Accept()
		if err != nil {
			log.Fatalf("accept: %v", err)
		}
		go serve(conn, *name)
	}
}

func serve(conn net.Conn, name string) {
	defer conn.Close()

	if _, err := fmt.Fprintf(conn, "%s\n", name); err != nil {
		return
	}

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		if _, err := fmt.Fprintf(conn, "%s\n", scanner.Text()); err != nil {
			return
		}
	}
}
