package transport_test

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jonboulle/clockwork"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"autoflow.app/collab/internal/transport"
)

// fakeConn is an in-memory websocket stand-in. The test plays the server:
// it injects inbound frames and severs the connection at will.
type fakeConn struct {
	in        chan []byte
	closed    chan struct{}
	closeOnce sync.Once

	mu     sync.Mutex
	writes [][]byte
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:     make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (f *fakeConn) ReadMessage() (int, []byte, error) {
	select {
	case data := <-f.in:
		return 1, data, nil
	case <-f.closed:
		return 0, nil, errors.New("connection severed")
	}
}

func (f *fakeConn) WriteMessage(_ int, data []byte) error {
	select {
	case <-f.closed:
		return errors.New("connection severed")
	default:
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writes = append(f.writes, append([]byte(nil), data...))
	return nil
}

func (f *fakeConn) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeConn) sever() { f.Close() }

func (f *fakeConn) written() [][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]byte(nil), f.writes...)
}

// lingeringConn ignores Close, so a read loop blocked on it keeps running
// until the test releases it. It emulates a socket whose teardown is
// reported only after the channel has already moved on to a new connection.
type lingeringConn struct {
	release chan struct{}
}

func (l *lingeringConn) ReadMessage() (int, []byte, error) {
	<-l.release
	return 0, nil, errors.New("connection severed")
}

func (l *lingeringConn) WriteMessage(int, []byte) error { return nil }

func (l *lingeringConn) Close() error { return nil }

// scriptedDialer succeeds while outcomes[i] is a conn and fails while it is
// nil; past the end of the script every dial fails.
type scriptedDialer struct {
	mu       sync.Mutex
	outcomes []*fakeConn
	calls    atomic.Int32
}

func (d *scriptedDialer) dial(_ context.Context, _ string) (transport.Conn, error) {
	i := int(d.calls.Add(1)) - 1
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < len(d.outcomes) && d.outcomes[i] != nil {
		return d.outcomes[i], nil
	}
	return nil, errors.New("dial refused")
}

var _ = Describe("Channel", func() {
	var (
		clock  *clockwork.FakeClock
		dialer *scriptedDialer
		opens  atomic.Int32
		lost   atomic.Int32
	)

	newChannel := func() *transport.Channel {
		return transport.NewChannel(
			transport.Options{
				Clock:  clock,
				Dialer: dialer.dial,
			},
			transport.Callbacks{
				OnOpen:           func() { opens.Add(1) },
				OnConnectionLost: func() { lost.Add(1) },
			},
		)
	}

	BeforeEach(func() {
		clock = clockwork.NewFakeClock()
		dialer = &scriptedDialer{}
		opens.Store(0)
		lost.Store(0)
	})

	Describe("Connect", func() {
		It("transitions to connected and fires OnOpen", func() {
			dialer.outcomes = []*fakeConn{newFakeConn()}
			ch := newChannel()

			Expect(ch.Connect(context.Background(), "ws://hub/ws/wf-1")).To(Succeed())
			Expect(ch.State()).To(Equal(transport.StateConnected))
			Expect(opens.Load()).To(Equal(int32(1)))

			ch.Disconnect()
		})

		It("is idempotent while already connected", func() {
			dialer.outcomes = []*fakeConn{newFakeConn()}
			ch := newChannel()

			Expect(ch.Connect(context.Background(), "ws://hub/ws/wf-1")).To(Succeed())
			Expect(ch.Connect(context.Background(), "ws://hub/ws/wf-1")).To(Succeed())

			Expect(dialer.calls.Load()).To(Equal(int32(1)))
			ch.Disconnect()
		})

		It("returns the dial error without starting the reconnect loop", func() {
			ch := newChannel()

			err := ch.Connect(context.Background(), "ws://hub/ws/wf-1")
			Expect(err).To(HaveOccurred())
			Expect(ch.State()).To(Equal(transport.StateDisconnected))

			clock.Advance(time.Minute)
			Expect(dialer.calls.Load()).To(Equal(int32(1)))
		})
	})

	Describe("Send", func() {
		It("writes frames while connected", func() {
			conn := newFakeConn()
			dialer.outcomes = []*fakeConn{conn}
			ch := newChannel()
			Expect(ch.Connect(context.Background(), "ws://hub/ws/wf-1")).To(Succeed())

			ch.Send([]byte(`{"type":"cursor_move","userId":"u1","x":1,"y":2}`))

			Expect(conn.written()).To(HaveLen(1))
			ch.Disconnect()
		})

		It("drops the message silently when not connected", func() {
			ch := newChannel()

			Expect(func() {
				ch.Send([]byte(`{"type":"cursor_move"}`))
			}).NotTo(Panic())
			Expect(ch.State()).To(Equal(transport.StateDisconnected))
		})
	})

	Describe("inbound messages", func() {
		It("delivers frames in order", func() {
			conn := newFakeConn()
			dialer.outcomes = []*fakeConn{conn}

			var mu sync.Mutex
			var got []string
			ch := transport.NewChannel(
				transport.Options{Clock: clock, Dialer: dialer.dial},
				transport.Callbacks{OnMessage: func(data []byte) {
					mu.Lock()
					got = append(got, string(data))
					mu.Unlock()
				}},
			)
			Expect(ch.Connect(context.Background(), "ws://hub/ws/wf-1")).To(Succeed())

			conn.in <- []byte("one")
			conn.in <- []byte("two")
			conn.in <- []byte("three")

			Eventually(func() []string {
				mu.Lock()
				defer mu.Unlock()
				return append([]string(nil), got...)
			}).Should(Equal([]string{"one", "two", "three"}))

			ch.Disconnect()
		})
	})

	Describe("heartbeat", func() {
		It("sends a heartbeat frame every period while connected", func() {
			conn := newFakeConn()
			dialer.outcomes = []*fakeConn{conn}
			ch := transport.NewChannel(
				transport.Options{
					Clock:           clock,
					Dialer:          dialer.dial,
					HeartbeatPeriod: 30 * time.Second,
				},
				transport.Callbacks{},
			)
			Expect(ch.Connect(context.Background(), "ws://hub/ws/wf-1")).To(Succeed())

			clock.Advance(30 * time.Second)
			Eventually(conn.written).Should(ContainElement([]byte(`{"type":"heartbeat"}`)))

			clock.Advance(30 * time.Second)
			Eventually(func() int { return len(conn.written()) }).Should(BeNumerically(">=", 2))

			ch.Disconnect()
		})
	})

	Describe("reconnection", func() {
		It("backs off 2s, 4s, 8s, 16s, 32s and then gives up for good", func() {
			conn := newFakeConn()
			dialer.outcomes = []*fakeConn{conn}
			ch := newChannel()
			Expect(ch.Connect(context.Background(), "ws://hub/ws/wf-1")).To(Succeed())

			conn.sever()
			Eventually(ch.State).Should(Equal(transport.StateReconnecting))

			// Every retry doubles the delay; the attempt fires only once
			// the full interval has elapsed. RetryAttempt is bumped in the
			// same critical section that arms the timer, so it gates each
			// advance.
			delays := []time.Duration{2, 4, 8, 16, 32}
			for i, d := range delays {
				delay := d * time.Second
				Eventually(ch.RetryAttempt).Should(Equal(i + 1))

				clock.Advance(delay - time.Millisecond)
				Consistently(dialer.calls.Load, 50*time.Millisecond).Should(Equal(int32(i + 1)))

				clock.Advance(time.Millisecond)
				Eventually(dialer.calls.Load).Should(Equal(int32(i + 2)))
			}

			Eventually(ch.State).Should(Equal(transport.StateDisconnected))
			Eventually(lost.Load).Should(Equal(int32(1)))

			// Terminal: no further attempts, ever.
			clock.Advance(10 * time.Minute)
			Consistently(dialer.calls.Load, 50*time.Millisecond).Should(Equal(int32(6)))
		})

		It("resets the retry counter and fires OnOpen again on success", func() {
			first := newFakeConn()
			second := newFakeConn()
			dialer.outcomes = []*fakeConn{first, second}
			ch := newChannel()
			Expect(ch.Connect(context.Background(), "ws://hub/ws/wf-1")).To(Succeed())

			first.sever()
			Eventually(ch.State).Should(Equal(transport.StateReconnecting))

			clock.Advance(2 * time.Second)
			Eventually(ch.State).Should(Equal(transport.StateConnected))
			Eventually(opens.Load).Should(Equal(int32(2)))
			Expect(ch.RetryAttempt()).To(BeZero())

			ch.Disconnect()
		})

		It("ignores the late close of a superseded connection", func() {
			old := &lingeringConn{release: make(chan struct{})}
			fresh := newFakeConn()
			var dials atomic.Int32
			dial := func(context.Context, string) (transport.Conn, error) {
				if dials.Add(1) == 1 {
					return old, nil
				}
				return fresh, nil
			}

			var mu sync.Mutex
			var got []string
			ch := transport.NewChannel(
				transport.Options{Clock: clock, Dialer: dial},
				transport.Callbacks{OnMessage: func(data []byte) {
					mu.Lock()
					got = append(got, string(data))
					mu.Unlock()
				}},
			)

			// Leave and rejoin while the first socket's read loop is still
			// parked on its blocking read.
			Expect(ch.Connect(context.Background(), "ws://hub/ws/wf-1")).To(Succeed())
			ch.Disconnect()
			Expect(ch.Connect(context.Background(), "ws://hub/ws/wf-1")).To(Succeed())
			Expect(ch.State()).To(Equal(transport.StateConnected))

			// The first socket finally reports its close. The live
			// connection must survive it untouched.
			close(old.release)
			Consistently(ch.State, "200ms").Should(Equal(transport.StateConnected))
			Expect(ch.RetryAttempt()).To(BeZero())
			Expect(dials.Load()).To(Equal(int32(2)))

			fresh.in <- []byte("still here")
			Eventually(func() []string {
				mu.Lock()
				defer mu.Unlock()
				return append([]string(nil), got...)
			}).Should(Equal([]string{"still here"}))

			ch.Disconnect()
		})

		It("loses the race to a deliberate disconnect", func() {
			conn := newFakeConn()
			dialer.outcomes = []*fakeConn{conn}
			ch := newChannel()
			Expect(ch.Connect(context.Background(), "ws://hub/ws/wf-1")).To(Succeed())

			conn.sever()
			Eventually(ch.State).Should(Equal(transport.StateReconnecting))

			ch.Disconnect()
			Expect(ch.State()).To(Equal(transport.StateDisconnected))

			// The pending reconnect timer must not reopen the socket.
			clock.Advance(time.Minute)
			Consistently(dialer.calls.Load, 50*time.Millisecond).Should(Equal(int32(1)))
		})
	})

	Describe("Disconnect", func() {
		It("is safe to call when never connected", func() {
			ch := newChannel()
			Expect(func() { ch.Disconnect() }).NotTo(Panic())
			Expect(ch.State()).To(Equal(transport.StateDisconnected))
		})
	})
})
