package sse

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/avlog/internal/models"
)

// message is one parsed SSE frame.
type message struct {
	id, event, data string
}

func parse(t *testing.T, raw []byte) message {
	t.Helper()
	var m message
	for _, line := range strings.Split(strings.TrimSuffix(string(raw), "\n\n"), "\n") {
		switch {
		case strings.HasPrefix(line, "id: "):
			m.id = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			m.event = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			m.data = strings.TrimPrefix(line, "data: ")
		default:
			t.Fatalf("unexpected line %q in %q", line, raw)
		}
	}
	return m
}

func next(t *testing.T, c *client) message {
	t.Helper()
	select {
	case raw, ok := <-c.out:
		require.True(t, ok, "stream closed")
		return parse(t, raw)
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for message")
		return message{}
	}
}

func treeOf(t *testing.T, m message) TreeUpdate {
	t.Helper()
	require.Equal(t, EventTreeUpdated, m.event)
	var tu TreeUpdate
	require.NoError(t, json.Unmarshal([]byte(m.data), &tu))
	return tu
}

func TestBroker_ConversionThenTree(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	c := b.subscribe()
	defer b.unsubscribe(c)

	b.PublishConversion(models.Summary{RunID: "run-1", OutputRoot: "/out", Records: 4})

	conv := next(t, c)
	assert.Equal(t, "run-1", conv.id)
	assert.Equal(t, EventConversionCompleted, conv.event)
	var s models.Summary
	require.NoError(t, json.Unmarshal([]byte(conv.data), &s))
	assert.Equal(t, 4, s.Records)

	tree := next(t, c)
	assert.Equal(t, "run-1", tree.id)
	assert.Equal(t, TreeUpdate{Root: "/out", Records: 4}, treeOf(t, tree))
}

func TestBroker_TreeIsThrottled(t *testing.T) {
	b := NewBroker(300 * time.Millisecond)
	defer b.Close()
	c := b.subscribe()
	defer b.unsubscribe(c)

	start := time.Now()
	b.PublishConversion(models.Summary{RunID: "a", OutputRoot: "/out", Records: 1})
	b.PublishConversion(models.Summary{RunID: "b", OutputRoot: "/out", Records: 2})
	b.PublishConversion(models.Summary{RunID: "c", OutputRoot: "/out", Records: 3})

	assert.Equal(t, "a", next(t, c).id)
	assert.Equal(t, 1, treeOf(t, next(t, c)).Records)
	assert.Equal(t, "b", next(t, c).id)
	assert.Equal(t, "c", next(t, c).id)

	// b's tree is superseded; c's arrives once the window closes.
	trailing := next(t, c)
	assert.Equal(t, "c", trailing.id)
	assert.Equal(t, 3, treeOf(t, trailing).Records)
	assert.GreaterOrEqual(t, time.Since(start), 300*time.Millisecond)

	select {
	case raw := <-c.out:
		t.Fatalf("unexpected message %q", raw)
	case <-time.After(400 * time.Millisecond):
	}
}

func TestBroker_LateSubscriberGetsLatestRun(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()

	b.PublishConversion(models.Summary{RunID: "old"})
	b.PublishConversion(models.Summary{RunID: "new"})

	c := b.subscribe()
	defer b.unsubscribe(c)

	m := next(t, c)
	assert.Equal(t, "new", m.id)
	assert.Equal(t, EventConversionCompleted, m.event)
}

func TestBroker_NoReplayBeforeFirstRun(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	c := b.subscribe()
	defer b.unsubscribe(c)

	select {
	case raw := <-c.out:
		t.Fatalf("unexpected message %q", raw)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestBroker_SlowClientIsDisconnected(t *testing.T) {
	b := NewBroker(time.Hour)
	defer b.Close()
	slow := b.subscribe()
	fast := b.subscribe()
	defer b.unsubscribe(fast)

	received := 0
	for i := 0; i <= clientBuffer; i++ {
		b.PublishConversion(models.Summary{RunID: "r"})
		for {
			select {
			case <-fast.out:
				received++
				continue
			default:
			}
			break
		}
	}
	assert.GreaterOrEqual(t, received, clientBuffer+1)

	drained := 0
	for range slow.out {
		drained++
	}
	assert.Equal(t, clientBuffer, drained)
	assert.Equal(t, int64(1), b.connected.Load())
}

func TestBroker_CloseEndsStreams(t *testing.T) {
	b := NewBroker(time.Second)
	c := b.subscribe()
	b.Close()

	_, ok := <-c.out
	assert.False(t, ok)
	assert.Zero(t, b.connected.Load())

	late := b.subscribe()
	_, ok = <-late.out
	assert.False(t, ok)

	done := make(chan struct{})
	go func() {
		b.PublishConversion(models.Summary{RunID: "x"})
		b.unsubscribe(late)
		b.Close()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("closed broker blocked")
	}
}

func TestServeHTTP_Stream(t *testing.T) {
	b := NewBroker(time.Second)
	defer b.Close()
	srv := httptest.NewServer(b)
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))
	assert.Equal(t, "no-cache", resp.Header.Get("Cache-Control"))

	require.Eventually(t, func() bool { return b.connected.Load() == 1 }, time.Second, 10*time.Millisecond)
	b.PublishConversion(models.Summary{RunID: "run-7", OutputRoot: "/out", Records: 1})

	reader := bufio.NewReader(resp.Body)
	lines := make([]string, 0, 3)
	for len(lines) < 3 {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		lines = append(lines, strings.TrimSuffix(line, "\n"))
	}
	assert.Equal(t, "id: run-7", lines[0])
	assert.Equal(t, "event: "+EventConversionCompleted, lines[1])
	assert.True(t, strings.HasPrefix(lines[2], "data: {"), lines[2])

	cancel()
	require.Eventually(t, func() bool { return b.connected.Load() == 0 }, time.Second, 10*time.Millisecond)
}

func TestServeHTTP_KeepAlive(t *testing.T) {
	b := NewBroker(time.Second)
	b.keepAlive = 20 * time.Millisecond
	defer b.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()
	req := httptest.NewRequest(http.MethodGet, "/events", nil).WithContext(ctx)
	w := httptest.NewRecorder()
	b.ServeHTTP(w, req)

	assert.Contains(t, w.Body.String(), ": ping\n\n")
}
