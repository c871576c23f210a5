package websocket

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aescanero/dafo/internal/application/observers"
	"github.com/aescanero/dafo/pkg/domain"
	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var (
	alice = common.HexToAddress("0x000000000000000000000000000000000000a11c")
	bob   = common.HexToAddress("0x0000000000000000000000000000000000000b0b")
)

type fanout struct {
	mu        sync.Mutex
	listeners map[int]observers.Listener
	next      int
}

func (f *fanout) Listen(l observers.Listener) func() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listeners == nil {
		f.listeners = make(map[int]observers.Listener)
	}
	id := f.next
	f.next++
	f.listeners[id] = l
	return func() {
		f.mu.Lock()
		defer f.mu.Unlock()
		delete(f.listeners, id)
	}
}

func (f *fanout) emit(n *domain.Notification) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, l := range f.listeners {
		l(n)
	}
}

func (f *fanout) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listeners)
}

func startServer(t *testing.T, src *fanout) *httptest.Server {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", NewHandler(src, zaptest.NewLogger(t)).HandleNotificationStream)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return srv
}

func dial(t *testing.T, srv *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestStreamFiltersByCaller(t *testing.T) {
	src := &fanout{}
	srv := startServer(t, src)
	conn := dial(t, srv, "?caller="+alice.Hex())

	require.Eventually(t, func() bool { return src.count() == 1 }, time.Second, 5*time.Millisecond)

	src.emit(domain.NewNotification(domain.NotificationBorrowed, domain.OpBorrow, bob, time.Now()))
	want := domain.NewNotification(domain.NotificationSupplied, domain.OpSupply, alice, time.Now()).With("amount", "5")
	src.emit(want)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var got domain.Notification
	require.NoError(t, conn.ReadJSON(&got))
	assert.Equal(t, want.ID, got.ID)
	assert.Equal(t, alice, got.Caller)
	assert.Equal(t, "5", got.Data["amount"])
}

func TestStreamStopsListeningOnDisconnect(t *testing.T) {
	src := &fanout{}
	srv := startServer(t, src)
	conn := dial(t, srv, "")

	require.Eventually(t, func() bool { return src.count() == 1 }, time.Second, 5*time.Millisecond)
	require.NoError(t, conn.Close())
	assert.Eventually(t, func() bool { return src.count() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestStreamRejectsBadFilter(t *testing.T) {
	srv := startServer(t, &fanout{})

	resp, err := http.Get(srv.URL + "/ws?caller=nope")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
