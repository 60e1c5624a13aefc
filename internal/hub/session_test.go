package hub

import (
	"context"
	"encoding/json"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/jonboulle/clockwork"

	"autoflow.app/collab/core/config"
	"autoflow.app/collab/internal/model"
	"autoflow.app/collab/internal/store"
)

// memSessionStore keeps session records in a map; enough to drive the hub.
type memSessionStore struct {
	records map[string]*model.Session
}

func newMemSessionStore() *memSessionStore {
	return &memSessionStore{records: make(map[string]*model.Session)}
}

func (m *memSessionStore) GetByWorkflow(_ context.Context, workflowID string) (*model.Session, error) {
	if s, ok := m.records[workflowID]; ok {
		dup := *s
		return &dup, nil
	}
	return nil, store.ErrNotFound
}

func (m *memSessionStore) Create(_ context.Context, session *model.Session) error {
	dup := *session
	m.records[session.WorkflowID] = &dup
	return nil
}

func (m *memSessionStore) SetActive(_ context.Context, workflowID string, active bool) error {
	if s, ok := m.records[workflowID]; ok {
		s.IsActive = active
		return nil
	}
	return store.ErrNotFound
}

func (m *memSessionStore) Delete(_ context.Context, workflowID string) error {
	delete(m.records, workflowID)
	return nil
}

func testConfig() config.CollabConfig {
	return config.CollabConfig{
		HeartbeatInterval:  30 * time.Second,
		LockTTL:            30 * time.Second,
		ActivityWindow:     60 * time.Second,
		ReconnectBase:      2 * time.Second,
		MaxReconnects:      5,
		SessionIdleTimeout: 5 * time.Minute,
	}
}

// attach registers a pumpless client and sends its join frame.
func attach(s *Session, userID, userName string) *Client {
	c := &Client{session: s, send: make(chan []byte, sendBuffer)}
	s.register <- c
	join, _ := json.Marshal(map[string]string{
		"type":     "join",
		"userId":   userID,
		"userName": userName,
	})
	s.inbound <- inboundFrame{client: c, data: join}
	return c
}

func frame(c *Client) func() map[string]any {
	return func() map[string]any {
		select {
		case data := <-c.send:
			var out map[string]any
			Expect(json.Unmarshal(data, &out)).To(Succeed())
			return out
		default:
			return nil
		}
	}
}

var _ = Describe("Session", func() {
	var (
		clock    *clockwork.FakeClock
		sessions *memSessionStore
		h        *Hub
		s        *Session
	)

	BeforeEach(func() {
		clock = clockwork.NewFakeClock()
		sessions = newMemSessionStore()
		h = New(testConfig(), clock, sessions)
		var err error
		s, err = h.getOrCreate(context.Background(), "wf-1")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		h.Shutdown()
	})

	It("creates an active session record on first attach", func() {
		record, err := sessions.GetByWorkflow(context.Background(), "wf-1")
		Expect(err).NotTo(HaveOccurred())
		Expect(record.IsActive).To(BeTrue())
		Expect(record.SessionID).NotTo(BeEmpty())
	})

	It("announces a join to everyone already present", func() {
		a := attach(s, "u-a", "Ada")
		Eventually(func() int { return len(s.Participants()) }).Should(Equal(1))

		attach(s, "u-b", "Bram")

		Eventually(frame(a)).Should(HaveKeyWithValue("type", "user_joined"))
	})

	It("does not echo a join back to its sender", func() {
		a := attach(s, "u-a", "Ada")
		Consistently(frame(a), "100ms").Should(BeNil())
	})

	Describe("lock grants", func() {
		var a, b *Client

		lockReq := func(c *Client, nodeID string) {
			data, _ := json.Marshal(map[string]string{
				"type":   "lock_node",
				"nodeId": nodeID,
			})
			s.inbound <- inboundFrame{client: c, data: data}
		}

		BeforeEach(func() {
			a = attach(s, "u-a", "Ada")
			b = attach(s, "u-b", "Bram")
			Eventually(func() int { return len(s.Participants()) }).Should(Equal(2))
			// Drain the join announcement A received for B.
			Eventually(frame(a)).Should(HaveKeyWithValue("type", "user_joined"))
		})

		It("grants a free node to the requester and broadcasts to all", func() {
			lockReq(a, "node-1")

			Eventually(frame(a)).Should(And(
				HaveKeyWithValue("type", "node_locked"),
				HaveKeyWithValue("userId", "u-a"),
			))
			Eventually(frame(b)).Should(HaveKeyWithValue("type", "node_locked"))
		})

		It("stays silent on a request for a node someone else holds", func() {
			lockReq(a, "node-1")
			Eventually(frame(a)).Should(HaveKeyWithValue("type", "node_locked"))
			Eventually(frame(b)).Should(HaveKeyWithValue("type", "node_locked"))

			lockReq(b, "node-1")
			Consistently(frame(b), "100ms").Should(BeNil())
			Eventually(s.Locks).Should(HaveLen(1))
			Expect(s.Locks()[0].HolderID).To(Equal("u-a"))
		})

		It("grants again once the previous lock expired", func() {
			lockReq(a, "node-1")
			Eventually(frame(a)).Should(HaveKeyWithValue("type", "node_locked"))
			Eventually(frame(b)).Should(HaveKeyWithValue("type", "node_locked"))

			clock.Advance(testConfig().LockTTL + time.Millisecond)

			lockReq(b, "node-1")
			Eventually(frame(b)).Should(And(
				HaveKeyWithValue("type", "node_locked"),
				HaveKeyWithValue("userId", "u-b"),
			))
		})

		It("releases the holder's locks and announces the departure on disconnect", func() {
			lockReq(a, "node-1")
			Eventually(frame(a)).Should(HaveKeyWithValue("type", "node_locked"))
			Eventually(frame(b)).Should(HaveKeyWithValue("type", "node_locked"))

			s.unregister <- a

			Eventually(frame(b)).Should(And(
				HaveKeyWithValue("type", "node_unlocked"),
				HaveKeyWithValue("nodeId", "node-1"),
			))
			Eventually(frame(b)).Should(And(
				HaveKeyWithValue("type", "user_left"),
				HaveKeyWithValue("userId", "u-a"),
			))
			Eventually(s.Locks).Should(BeEmpty())
		})
	})

	Describe("reaping", func() {
		It("deactivates sessions idle past the timeout with no clients", func() {
			clock.Advance(testConfig().SessionIdleTimeout + time.Second)
			h.reap(context.Background())

			record, err := sessions.GetByWorkflow(context.Background(), "wf-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.IsActive).To(BeFalse())
			_, live := h.Lookup("wf-1")
			Expect(live).To(BeFalse())
		})

		It("keeps sessions that still have clients", func() {
			attach(s, "u-a", "Ada")
			Eventually(func() int32 { return s.clientCount.Load() }).Should(Equal(int32(1)))

			clock.Advance(testConfig().SessionIdleTimeout + time.Second)
			h.reap(context.Background())

			_, live := h.Lookup("wf-1")
			Expect(live).To(BeTrue())
		})

		It("refuses a register hand-off to a reaped session", func() {
			clock.Advance(testConfig().SessionIdleTimeout + time.Second)
			h.reap(context.Background())

			// The run loop has exited; the hand-off must fail fast instead
			// of blocking on a channel nothing receives from.
			c := &Client{send: make(chan []byte, sendBuffer)}
			done := make(chan bool, 1)
			go func() { done <- s.tryRegister(c) }()
			Eventually(done).Should(Receive(BeFalse()))
		})

		It("attaches through to a fresh session after a reap", func() {
			clock.Advance(testConfig().SessionIdleTimeout + time.Second)
			h.reap(context.Background())

			c := &Client{send: make(chan []byte, sendBuffer)}
			fresh, err := h.attach(context.Background(), "wf-1", c)
			Expect(err).NotTo(HaveOccurred())
			Expect(fresh).NotTo(BeIdenticalTo(s))
			Expect(c.session).To(BeIdenticalTo(fresh))
			Eventually(func() int32 { return fresh.clientCount.Load() }).Should(Equal(int32(1)))

			record, err := sessions.GetByWorkflow(context.Background(), "wf-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(record.IsActive).To(BeTrue())
		})
	})
})
