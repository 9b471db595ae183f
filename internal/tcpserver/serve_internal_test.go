package tcpserver

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// temporaryError mimics the transient accept failures the net package
// reports under resource pressure (e.g. fd exhaustion).
type temporaryError struct{}

func (temporaryError) Error() string   { return "accept: too many open files" }
func (temporaryError) Timeout() bool   { return false }
func (temporaryError) Temporary() bool { return true }

type acceptResult struct {
	conn net.Conn
	err  error
}

// scriptedListener feeds Accept from a channel and behaves like a closed
// listener after Close.
type scriptedListener struct {
	acceptCh  chan acceptResult
	closeOnce sync.Once
	closed    chan struct{}
}

func newScriptedListener(buffer int) *scriptedListener {
	return &scriptedListener{
		acceptCh: make(chan acceptResult, buffer),
		closed:   make(chan struct{}),
	}
}

func (l *scriptedListener) Accept() (net.Conn, error) {
	select {
	case r := <-l.acceptCh:
		return r.conn, r.err
	case <-l.closed:
		return nil, net.ErrClosed
	}
}

func (l *scriptedListener) Close() error {
	l.closeOnce.Do(func() { close(l.closed) })
	return nil
}

func (l *scriptedListener) Addr() net.Addr {
	return &net.TCPAddr{IP: net.IPv4(127, 0, 0, 1), Port: 0}
}

var _ = Describe("serve", func() {
	var (
		log    *slog.Logger
		ctx    context.Context
		cancel context.CancelFunc
	)

	BeforeEach(func() {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
		ctx, cancel = context.WithCancel(context.Background())
	})

	AfterEach(func() {
		cancel()
	})

	It("should keep accepting after a transient accept error", func() {
		var handled atomic.Int64
		srv, err := New("127.0.0.1:0", 0, log, func(ctx context.Context, conn net.Conn) {
			handled.Add(1)
			conn.Close()
		})
		Expect(err).NotTo(HaveOccurred())

		ln := newScriptedListener(4)
		ln.acceptCh <- acceptResult{err: temporaryError{}}
		ln.acceptCh <- acceptResult{err: temporaryError{}}
		clientSide, serverSide := net.Pipe()
		defer clientSide.Close()
		ln.acceptCh <- acceptResult{conn: serverSide}

		done := make(chan error, 1)
		go func() {
			done <- srv.serve(ctx, ln)
		}()

		// The loop must survive both transient errors and still dispatch
		// the connection that follows them.
		Eventually(handled.Load, "2s", "10ms").Should(Equal(int64(1)))

		cancel()
		Eventually(done, "2s").Should(Receive(BeNil()))
	})

	It("should return a permanent accept error", func() {
		srv, err := New("127.0.0.1:0", 0, log, func(ctx context.Context, conn net.Conn) {
			conn.Close()
		})
		Expect(err).NotTo(HaveOccurred())

		permanent := &net.OpError{Op: "accept", Net: "tcp", Err: io.ErrUnexpectedEOF}
		ln := newScriptedListener(1)
		ln.acceptCh <- acceptResult{err: permanent}

		done := make(chan error, 1)
		go func() {
			done <- srv.serve(ctx, ln)
		}()

		Eventually(done, "2s").Should(Receive(MatchError(permanent)))
	})

	It("should report clean shutdown when cancellation races the transient backoff", func() {
		srv, err := New("127.0.0.1:0", 0, log, func(ctx context.Context, conn net.Conn) {
			conn.Close()
		})
		Expect(err).NotTo(HaveOccurred())

		ln := newScriptedListener(1)
		ln.acceptCh <- acceptResult{err: temporaryError{}}

		done := make(chan error, 1)
		go func() {
			done <- srv.serve(ctx, ln)
		}()

		cancel()
		Eventually(done, "2s").Should(Receive(BeNil()))
	})
})
