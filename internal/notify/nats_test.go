package notify

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/sitebuilder/internal/events"
	"git.home.luguber.info/inful/sitebuilder/internal/retry"
)

type fakeConn struct {
	mu       sync.Mutex
	subjects []string
	payloads [][]byte
	closed   bool
}

func (c *fakeConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.subjects = append(c.subjects, subject)
	c.payloads = append(c.payloads, data)
	return nil
}

func (c *fakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
}

func (c *fakeConn) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.payloads)
}

func TestPublish_EncodesEvent(t *testing.T) {
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "site.pages", nil)

	require.NoError(t, p.Publish(events.PagesBuilt{BatchID: "b1", Keys: []string{"index", "guide"}, Completed: true}))

	require.Equal(t, []string{"site.pages"}, conn.subjects)
	var got events.PagesBuilt
	require.NoError(t, json.Unmarshal(conn.payloads[0], &got))
	assert.Equal(t, "b1", got.BatchID)
	assert.Equal(t, []string{"index", "guide"}, got.Keys)
	assert.True(t, got.Completed)

	p.Close()
	assert.True(t, conn.closed)
}

func TestRun_ForwardsBusEvents(t *testing.T) {
	bus := events.NewBus()
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "site.pages", nil)

	done := make(chan struct{})
	go func() {
		p.Run(t.Context(), bus)
		close(done)
	}()
	require.Eventually(t, func() bool { return events.SubscriberCount[events.PagesBuilt](bus) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(t.Context(), events.PagesBuilt{BatchID: "b2"}))
	require.Eventually(t, func() bool { return conn.count() == 1 }, time.Second, 5*time.Millisecond)

	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after bus close")
	}
}

func TestStart_DeliversBufferedEventsAfterClose(t *testing.T) {
	bus := events.NewBus()
	conn := &fakeConn{}
	p := NewNATSPublisher(conn, "site.pages", nil)

	done := p.Start(t.Context(), bus)
	assert.Equal(t, 1, events.SubscriberCount[events.PagesBuilt](bus))

	require.NoError(t, bus.Publish(t.Context(), events.PagesBuilt{BatchID: "b3"}))
	bus.Close()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("forwarding did not stop after bus close")
	}
	assert.Equal(t, 1, conn.count())
}

type flakyConn struct {
	fakeConn
	failures int
}

func (c *flakyConn) Publish(subject string, data []byte) error {
	c.mu.Lock()
	if c.failures > 0 {
		c.failures--
		c.mu.Unlock()
		return errors.New("nats: connection closed")
	}
	c.mu.Unlock()
	return c.fakeConn.Publish(subject, data)
}

func TestRun_RetriesTransientFailures(t *testing.T) {
	bus := events.NewBus()
	conn := &flakyConn{failures: 2}
	p := NewNATSPublisher(conn, "site.pages", nil, WithRetry(retry.NewPolicy(retry.Fixed, time.Millisecond, time.Millisecond, 3)))

	done := p.Start(t.Context(), bus)
	require.NoError(t, bus.Publish(t.Context(), events.PagesBuilt{BatchID: "b4"}))
	require.Eventually(t, func() bool { return conn.count() == 1 }, time.Second, 5*time.Millisecond)
	bus.Close()
	<-done
}
