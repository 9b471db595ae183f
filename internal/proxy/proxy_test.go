package proxy_test

import (
	"context"
	"io"
	"log/slog"
	"net"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"tcplb/internal/backend"
	"tcplb/internal/loadbalancer"
	"tcplb/internal/metrics"
	"tcplb/internal/proxy"
	"tcplb/internal/strategy"
)

func TestProxy(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Proxy Suite")
}

// echoBackend accepts connections and echoes every byte back until the peer
// closes.
func echoBackend() (net.Listener, int) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				io.Copy(c, c)
			}(conn)
		}
	}()

	return ln, ln.Addr().(*net.TCPAddr).Port
}

// resetBackend accepts connections and slams them shut immediately.
func resetBackend() (net.Listener, int) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	return ln, ln.Addr().(*net.TCPAddr).Port
}

// freePort returns a port nothing is listening on.
func freePort() int {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	Expect(err).NotTo(HaveOccurred())
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()
	return port
}

var _ = Describe("Forwarder", func() {
	var (
		log       *slog.Logger
		collector *metrics.Collector
		ctx       context.Context
		cancel    context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx, cancel = context.WithCancel(context.Background())
		collector = metrics.NewCollector(100, log)
		collector.Start(ctx)
	})

	AfterEach(func() {
		cancel()
	})

	newForwarder := func(backends []*backend.Backend) *proxy.Forwarder {
		balancer := loadbalancer.NewLoadBalancer(strategy.NewRoundRobinStrategy())
		return proxy.NewForwarder(log, balancer, backends, collector, time.Second)
	}

	// runSession drives one Handle call with a piped client connection and
	// returns the test's end of the pipe plus a channel closed on completion.
	runSession := func(f *proxy.Forwarder) (net.Conn, chan struct{}) {
		clientSide, serverSide := net.Pipe()
		done := make(chan struct{})
		go func() {
			defer close(done)
			f.Handle(ctx, serverSide)
		}()
		return clientSide, done
	}

	Context("with a healthy echo backend", func() {
		var (
			ln net.Listener
			b  *backend.Backend
			f  *proxy.Forwarder
		)

		BeforeEach(func() {
			var port int
			ln, port = echoBackend()
			b = backend.New("127.0.0.1", port, "server1")
			f = newForwarder([]*backend.Backend{b})
		})

		AfterEach(func() {
			ln.Close()
		})

		It("should relay bytes in both directions", func() {
			client, done := runSession(f)

			_, err := client.Write([]byte("hello backend"))
			Expect(err).NotTo(HaveOccurred())

			buf := make([]byte, 64)
			client.SetReadDeadline(time.Now().Add(2 * time.Second))
			n, err := client.Read(buf)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(buf[:n])).To(Equal("hello backend"))

			client.Close()
			Eventually(done, "2s").Should(BeClosed())
		})

		It("should return the connection count to its pre-session value", func() {
			client, done := runSession(f)

			Eventually(b.ActiveConnections, "1s", "10ms").Should(Equal(1))

			client.Close()
			Eventually(done, "2s").Should(BeClosed())
			Expect(b.ActiveConnections()).To(Equal(0))
			Expect(b.TotalRequests()).To(Equal(int64(1)))
		})

		It("should record the completed session in metrics", func() {
			client, done := runSession(f)

			client.Write([]byte("ping"))
			buf := make([]byte, 4)
			client.SetReadDeadline(time.Now().Add(2 * time.Second))
			io.ReadFull(client, buf)
			client.Close()
			Eventually(done, "2s").Should(BeClosed())

			Eventually(func() int64 {
				return collector.Snapshot("round_robin").Backends["server1"].SessionsClosed
			}, "1s", "10ms").Should(Equal(int64(1)))

			snap := collector.Snapshot("round_robin")
			Expect(snap.Backends["server1"].BytesToBackend).To(Equal(int64(4)))
			Expect(snap.Backends["server1"].BytesToClient).To(Equal(int64(4)))
		})
	})

	Context("when no healthy backend exists", func() {
		It("should close the client without forwarding", func() {
			b := backend.New("127.0.0.1", freePort(), "server1")
			b.SetHealthy(false)
			f := newForwarder([]*backend.Backend{b})

			client, done := runSession(f)
			Eventually(done, "2s").Should(BeClosed())

			client.SetReadDeadline(time.Now().Add(time.Second))
			_, err := client.Read(make([]byte, 1))
			Expect(err).To(HaveOccurred())

			Expect(b.ActiveConnections()).To(Equal(0))
			Expect(b.TotalRequests()).To(Equal(int64(0)))

			Eventually(func() int64 {
				return collector.Snapshot("round_robin").NoBackendDrops
			}, "1s", "10ms").Should(Equal(int64(1)))
		})
	})

	Context("when the backend refuses the dial", func() {
		It("should mark the backend unhealthy and release the reservation", func() {
			b := backend.New("127.0.0.1", freePort(), "server1")
			f := newForwarder([]*backend.Backend{b})

			client, done := runSession(f)
			Eventually(done, "2s").Should(BeClosed())
			client.Close()

			Expect(b.IsHealthy()).To(BeFalse())
			Expect(b.ActiveConnections()).To(Equal(0))
			// The reservation still counts as a routed request.
			Expect(b.TotalRequests()).To(Equal(int64(1)))

			Eventually(func() int64 {
				return collector.Snapshot("round_robin").Backends["server1"].DialFailures
			}, "1s", "10ms").Should(Equal(int64(1)))
		})
	})

	Context("when the backend drops the session mid-relay", func() {
		It("should tear down without touching the health flag", func() {
			ln, port := resetBackend()
			defer ln.Close()

			b := backend.New("127.0.0.1", port, "server1")
			f := newForwarder([]*backend.Backend{b})

			client, done := runSession(f)
			client.Write([]byte("doomed"))

			Eventually(done, "2s").Should(BeClosed())
			client.Close()

			Expect(b.IsHealthy()).To(BeTrue())
			Expect(b.ActiveConnections()).To(Equal(0))
		})
	})
})
