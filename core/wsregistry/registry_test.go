package wsregistry_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/extsession/core/event"
	"github.com/dmitrymomot/extsession/core/wsregistry"
)

type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	closed  bool
	control []int
}

func (c *fakeConn) WriteControl(messageType int, data []byte, _ time.Time) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.control = append(c.control, messageType)
	c.frames = append(c.frames, data)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func TestRegistry_AddAndRemove(t *testing.T) {
	t.Parallel()

	reg := wsregistry.New()
	_, err := reg.Add("", &fakeConn{})
	require.ErrorIs(t, err, wsregistry.ErrEmptySessionID)

	a, b := &fakeConn{}, &fakeConn{}
	removeA, err := reg.Add("sid", a)
	require.NoError(t, err)
	_, err = reg.Add("sid", b)
	require.NoError(t, err)
	assert.Equal(t, 2, reg.Count("sid"))

	removeA()
	removeA()
	assert.Equal(t, 1, reg.Count("sid"))

	assert.Equal(t, 1, reg.CloseSession(context.Background(), "sid"))
	assert.True(t, b.Closed())
	assert.False(t, a.Closed())
	assert.Zero(t, reg.Count("sid"))
	assert.Zero(t, reg.CloseSession(context.Background(), "sid"))
}

func TestRegistry_Handler(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	reg := wsregistry.New(wsregistry.WithCloseReason("logged out"))
	bus := event.NewBus()
	bus.Subscribe(reg.Handler())

	conn := &fakeConn{}
	_, err := reg.Add("sid", conn)
	require.NoError(t, err)

	require.NoError(t, bus.Publish(ctx, event.New(event.Created, "sid", "")))
	require.NoError(t, bus.Publish(ctx, event.New(event.AttributeChanged, "sid", "")))
	assert.False(t, conn.Closed())

	require.NoError(t, bus.Publish(ctx, event.New(event.Deleted, "sid", "alice")))
	assert.True(t, conn.Closed())
	require.Len(t, conn.control, 1)
	assert.Equal(t, websocket.CloseMessage, conn.control[0])
	assert.Equal(t, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "logged out"), conn.frames[0])
}

func TestRegistry_ClosesLiveConnectionOnExpiry(t *testing.T) {
	t.Parallel()

	reg := wsregistry.New()
	bus := event.NewBus()
	bus.Subscribe(reg.Handler(), event.Deleted, event.Expired)

	upgrader := &websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, done, err := reg.Upgrade(upgrader, w, r, r.URL.Query().Get("sid"))
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		defer done()
		defer conn.Close()
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")

	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	client, _, err := websocket.DefaultDialer.Dial(url+"?sid=abc", nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })

	require.Eventually(t, func() bool { return reg.Count("abc") == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(context.Background(), event.New(event.Expired, "abc", "")))

	require.NoError(t, client.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = client.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.ClosePolicyViolation), err.Error())

	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, wsregistry.DefaultCloseReason, closeErr.Text)
	assert.Zero(t, reg.Count("abc"))
}
