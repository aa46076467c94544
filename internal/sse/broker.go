// Package sse pushes conversion progress to browse clients as
// Server-Sent Events.
package sse

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/avlog/internal/models"
)

// Event names on the wire.
const (
	EventConversionCompleted = "conversion.completed"
	EventTreeUpdated         = "tree.updated"
)

const (
	defaultTreeThrottle = 2 * time.Second
	defaultKeepAlive    = 15 * time.Second
	clientBuffer        = 16
)

// TreeUpdate is the payload of tree.updated.
type TreeUpdate struct {
	Root    string `json:"root"`
	Records int    `json:"records"`
}

type client struct {
	out chan []byte
}

// Broker fans conversion runs out to SSE clients.
//
// One loop goroutine owns the client set, the latest run and the tree
// throttle. Every message carries the run id as its SSE id. A client that
// connects after a run is sent that run first. A client whose buffer is
// full is disconnected; on reconnect it gets the latest run again.
type Broker struct {
	treeMin   time.Duration
	keepAlive time.Duration

	join    chan *client
	leave   chan *client
	runs    chan models.Summary
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	// connected mirrors the loop's client count.
	connected atomic.Int64
}

// NewBroker starts a broker that emits tree.updated at most once per
// treeThrottle. A run inside the window is announced when it closes.
func NewBroker(treeThrottle time.Duration) *Broker {
	if treeThrottle <= 0 {
		treeThrottle = defaultTreeThrottle
	}
	b := &Broker{
		treeMin:   treeThrottle,
		keepAlive: defaultKeepAlive,
		join:      make(chan *client),
		leave:     make(chan *client),
		runs:      make(chan models.Summary),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
	}
	go b.loop()
	return b
}

func (b *Broker) loop() {
	defer close(b.stopped)

	clients := make(map[*client]struct{})
	var (
		latest      []byte
		lastTree    time.Time
		pendingTree []byte
		treeTimer   *time.Timer
		treeFire    <-chan time.Time
	)

	drop := func(c *client) {
		if _, ok := clients[c]; ok {
			delete(clients, c)
			close(c.out)
			b.connected.Add(-1)
		}
	}
	send := func(msg []byte) {
		for c := range clients {
			select {
			case c.out <- msg:
			default:
				slog.Warn("SSE client too slow, disconnecting")
				drop(c)
			}
		}
	}
	sendTree := func(msg []byte) {
		lastTree = time.Now()
		pendingTree = nil
		send(msg)
	}

	for {
		select {
		case <-b.done:
			if treeTimer != nil {
				treeTimer.Stop()
			}
			for c := range clients {
				drop(c)
			}
			return

		case c := <-b.join:
			clients[c] = struct{}{}
			b.connected.Add(1)
			if latest != nil {
				c.out <- latest
			}

		case c := <-b.leave:
			drop(c)

		case s := <-b.runs:
			msg, err := encode(s.RunID, EventConversionCompleted, s)
			if err != nil {
				slog.Error("encode SSE event", slog.String("error", err.Error()))
				continue
			}
			latest = msg
			send(msg)

			tree, err := encode(s.RunID, EventTreeUpdated, TreeUpdate{Root: s.OutputRoot, Records: s.Records})
			if err != nil {
				slog.Error("encode SSE event", slog.String("error", err.Error()))
				continue
			}
			wait := b.treeMin - time.Since(lastTree)
			if wait <= 0 {
				sendTree(tree)
				continue
			}
			pendingTree = tree
			if treeFire == nil {
				treeTimer = time.NewTimer(wait)
				treeFire = treeTimer.C
			}

		case <-treeFire:
			treeFire = nil
			if pendingTree != nil {
				sendTree(pendingTree)
			}
		}
	}
}

func encode(id, event string, data any) ([]byte, error) {
	payload, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	buf.WriteString("id: " + id + "\n")
	buf.WriteString("event: " + event + "\n")
	buf.WriteString("data: ")
	buf.Write(payload)
	buf.WriteString("\n\n")
	return buf.Bytes(), nil
}

// Close stops the loop and ends every open stream.
func (b *Broker) Close() {
	b.once.Do(func() { close(b.done) })
	<-b.stopped
}

// PublishConversion announces a finished run. It returns once the loop has
// taken the run, or at once when the broker is closed.
func (b *Broker) PublishConversion(summary models.Summary) {
	select {
	case b.runs <- summary:
	case <-b.stopped:
	}
}

// subscribe registers a client. The channel is closed when the client is
// dropped or the broker stops.
func (b *Broker) subscribe() *client {
	c := &client{out: make(chan []byte, clientBuffer)}
	select {
	case b.join <- c:
	case <-b.stopped:
		close(c.out)
	}
	return c
}

func (b *Broker) unsubscribe(c *client) {
	select {
	case b.leave <- c:
	case <-b.stopped:
	}
}

// ServeHTTP streams events to one client (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	c := b.subscribe()
	defer b.unsubscribe(c)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			if _, err := w.Write([]byte(": ping\n\n")); err != nil {
				return
			}
			flusher.Flush()
		case msg, ok := <-c.out:
			if !ok {
				return
			}
			if _, err := w.Write(msg); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
