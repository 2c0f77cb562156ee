// Package hub tracks live viewer connections per showtime and fans seat
// state changes out to them.  A Hub is constructed once at startup and
// injected wherever broadcasts originate.
package hub

import (
	"encoding/json"
	"errors"
	"log"
	"sort"
	"sync"
	"time"
)

// ErrClosed is returned when sending to a client that already left.
var ErrClosed = errors.New("hub: client closed")

// Transport is one live bidirectional connection.  Send and Receive are
// called from different goroutines; Close must unblock a pending Receive.
type Transport interface {
	Send(msg []byte) error
	Receive(timeout time.Duration) ([]byte, error)
	Close() error
}

// Client is a registered connection.  It is created by Connect and is
// valid until Disconnect.
type Client struct {
	ShowtimeID  uint64
	SessionID   string
	ConnectedAt time.Time

	t       Transport
	send    chan []byte
	closed  bool     // guarded by Hub.mu
	gated   bool     // guarded by Hub.mu; broadcasts wait in pending
	pending [][]byte // guarded by Hub.mu
	done    chan struct{}
}

// Done is closed once the client's writer has stopped and its transport
// is closed.
func (c *Client) Done() <-chan struct{} { return c.done }

// Options tune a Hub.
type Options struct {
	SendBuffer  int           // per-client outbound queue, 64 when zero
	IdleTimeout time.Duration // inbound silence tolerated by Serve, 60s when zero
}

// Hub is the connection registry.  Registration, removal and the enqueue
// step of every broadcast run under one mutex, so each client observes
// messages in the order the hub accepted them.  Actual network writes
// happen on a per-client goroutine outside the lock.
type Hub struct {
	mu    sync.Mutex
	rooms map[uint64]map[*Client]struct{}

	sendBuffer int
	idle       time.Duration
	now        func() time.Time
}

// New constructs an empty Hub.
func New(opts Options) *Hub {
	if opts.SendBuffer <= 0 {
		opts.SendBuffer = 64
	}
	if opts.IdleTimeout <= 0 {
		opts.IdleTimeout = 60 * time.Second
	}
	return &Hub{
		rooms:      make(map[uint64]map[*Client]struct{}),
		sendBuffer: opts.SendBuffer,
		idle:       opts.IdleTimeout,
		now:        time.Now,
	}
}

// Connect registers t under showtimeID and starts its writer.
func (h *Hub) Connect(t Transport, showtimeID uint64, sessionID string) *Client {
	return h.connect(t, showtimeID, sessionID, false)
}

// ConnectPending registers t like Connect, but messages for the client
// are held back until Ready delivers its first frame.  Broadcasts that
// race with loading that frame are therefore delivered after it.
func (h *Hub) ConnectPending(t Transport, showtimeID uint64, sessionID string) *Client {
	return h.connect(t, showtimeID, sessionID, true)
}

func (h *Hub) connect(t Transport, showtimeID uint64, sessionID string, gated bool) *Client {
	c := &Client{
		gated:       gated,
		ShowtimeID:  showtimeID,
		SessionID:   sessionID,
		ConnectedAt: h.now().UTC(),
		t:           t,
		send:        make(chan []byte, h.sendBuffer),
		done:        make(chan struct{}),
	}
	h.mu.Lock()
	room, ok := h.rooms[showtimeID]
	if !ok {
		room = make(map[*Client]struct{})
		h.rooms[showtimeID] = room
	}
	room[c] = struct{}{}
	n := len(room)
	h.mu.Unlock()

	go h.writePump(c)
	log.Printf("hub: connected showtime=%d session=%q (%d in room)", showtimeID, sessionID, n)
	return c
}

// Disconnect unregisters c.  It is safe to call more than once.
func (h *Hub) Disconnect(c *Client) {
	h.mu.Lock()
	removed := h.removeLocked(c)
	h.mu.Unlock()
	if removed {
		log.Printf("hub: disconnected showtime=%d session=%q", c.ShowtimeID, c.SessionID)
	}
}

// removeLocked drops c from its room, deleting the room when it empties,
// and stops the writer.  h.mu must be held.
func (h *Hub) removeLocked(c *Client) bool {
	if c.closed {
		return false
	}
	c.closed = true
	c.pending = nil
	close(c.send)
	if room, ok := h.rooms[c.ShowtimeID]; ok {
		delete(room, c)
		if len(room) == 0 {
			delete(h.rooms, c.ShowtimeID)
		}
	}
	return true
}

func (h *Hub) writePump(c *Client) {
	defer close(c.done)
	failed := false
	for msg := range c.send {
		if failed {
			continue
		}
		if err := c.t.Send(msg); err != nil {
			log.Printf("hub: send to showtime=%d session=%q failed: %v", c.ShowtimeID, c.SessionID, err)
			failed = true
			h.Disconnect(c)
		}
	}
	_ = c.t.Close()
}

// BroadcastOption narrows the recipients of a broadcast.
type BroadcastOption func(*broadcastFilter)

type broadcastFilter struct {
	exclude     *Client
	onlySession string
}

// Exclude skips one client, typically the originator.
func Exclude(c *Client) BroadcastOption {
	return func(f *broadcastFilter) { f.exclude = c }
}

// OnlySession limits delivery to clients of one session.
func OnlySession(sessionID string) BroadcastOption {
	return func(f *broadcastFilter) { f.onlySession = sessionID }
}

// Broadcast queues msg for every client watching showtimeID and returns
// how many clients accepted it.  A client whose queue is full is
// disconnected; delivery to the others continues.  A showtime without
// clients is a no-op.
func (h *Hub) Broadcast(showtimeID uint64, msg any, opts ...BroadcastOption) (int, error) {
	var f broadcastFilter
	for _, o := range opts {
		o(&f)
	}
	payload, err := json.Marshal(msg)
	if err != nil {
		return 0, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	room := h.rooms[showtimeID]
	if len(room) == 0 {
		return 0, nil
	}
	var slow []*Client
	delivered := 0
	for c := range room {
		if c == f.exclude {
			continue
		}
		if f.onlySession != "" && c.SessionID != f.onlySession {
			continue
		}
		if h.enqueueLocked(c, payload) {
			delivered++
		} else {
			slow = append(slow, c)
		}
	}
	for _, c := range slow {
		log.Printf("hub: dropping slow client showtime=%d session=%q", c.ShowtimeID, c.SessionID)
		h.removeLocked(c)
	}
	return delivered, nil
}

// Send queues msg for a single client.
func (h *Hub) Send(c *Client, msg any) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	if !h.enqueueLocked(c, payload) {
		h.removeLocked(c)
		return ErrClosed
	}
	return nil
}

// Ready queues first for a client from ConnectPending, then everything
// held back since it connected, and opens the client to direct delivery.
// On a client that is not gated it behaves like Send.
func (h *Hub) Ready(c *Client, first any) error {
	payload, err := json.Marshal(first)
	if err != nil {
		return err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	held := c.pending
	c.gated = false
	c.pending = nil
	for _, msg := range append([][]byte{payload}, held...) {
		if !h.enqueueLocked(c, msg) {
			log.Printf("hub: dropping slow client showtime=%d session=%q", c.ShowtimeID, c.SessionID)
			h.removeLocked(c)
			return ErrClosed
		}
	}
	return nil
}

// enqueueLocked hands payload to c's writer, or parks it while c is
// gated.  It reports false when c's queue is full.  Parked messages leave
// one slot of the send queue for the frame passed to Ready.  h.mu must be
// held.
func (h *Hub) enqueueLocked(c *Client, payload []byte) bool {
	if c.gated {
		if len(c.pending) >= cap(c.send)-1 {
			return false
		}
		c.pending = append(c.pending, payload)
		return true
	}
	select {
	case c.send <- payload:
		return true
	default:
		return false
	}
}

// Serve reads control frames from c until the transport fails or stays
// silent for the idle timeout, then disconnects c.  ping is answered with
// pong and heartbeat with heartbeat_ack; every other frame is ignored.
func (h *Hub) Serve(c *Client) {
	defer h.Disconnect(c)
	for {
		raw, err := c.t.Receive(h.idle)
		if err != nil {
			if isTimeout(err) {
				log.Printf("hub: showtime=%d session=%q idle for %s, closing", c.ShowtimeID, c.SessionID, h.idle)
			}
			return
		}
		var in control
		if err := json.Unmarshal(raw, &in); err != nil {
			continue
		}
		switch in.Type {
		case "ping":
			err = h.Send(c, pong{Type: TypePong})
		case "heartbeat":
			err = h.Send(c, heartbeatAck{Type: TypeHeartbeatAck, Timestamp: in.Timestamp})
		default:
			continue
		}
		if err != nil {
			return
		}
	}
}

func isTimeout(err error) bool {
	var te interface{ Timeout() bool }
	return errors.As(err, &te) && te.Timeout()
}

// ConnInfo describes one connection in a status report.
type ConnInfo struct {
	SessionID   string    `json:"session_id"`
	ConnectedAt time.Time `json:"connected_at"`
}

// Status is the per-showtime report served by the status endpoint.
type Status struct {
	ShowtimeID        uint64     `json:"showtime_id"`
	ActiveConnections int        `json:"active_connections"`
	Status            string     `json:"status"`
	Connections       []ConnInfo `json:"connections"`
}

// Status reports who is watching showtimeID.
func (h *Hub) Status(showtimeID uint64) Status {
	h.mu.Lock()
	room := h.rooms[showtimeID]
	conns := make([]ConnInfo, 0, len(room))
	for c := range room {
		conns = append(conns, ConnInfo{SessionID: c.SessionID, ConnectedAt: c.ConnectedAt})
	}
	h.mu.Unlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].ConnectedAt.Before(conns[j].ConnectedAt) })
	st := Status{
		ShowtimeID:        showtimeID,
		ActiveConnections: len(conns),
		Status:            "inactive",
		Connections:       conns,
	}
	if len(conns) > 0 {
		st.Status = "active"
	}
	return st
}

// Rooms returns how many showtimes currently have at least one viewer.
func (h *Hub) Rooms() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.rooms)
}

// Close disconnects every client.  Used on shutdown.
func (h *Hub) Close() {
	h.mu.Lock()
	var all []*Client
	for _, room := range h.rooms {
		for c := range room {
			all = append(all, c)
		}
	}
	for _, c := range all {
		h.removeLocked(c)
	}
	h.mu.Unlock()
	for _, c := range all {
		<-c.done
	}
}
