package tinode

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{}

// connRecorder channels every connection event to the test goroutine.
type connRecorder struct {
	connects    chan bool
	messages    chan []byte
	disconnects chan int
}

func newConnRecorder() *connRecorder {
	return &connRecorder{
		connects:    make(chan bool, 4),
		messages:    make(chan []byte, 4),
		disconnects: make(chan int, 4),
	}
}

func (r *connRecorder) OnConnect(reconnected bool)       { r.connects <- reconnected }
func (r *connRecorder) OnMessage(data []byte)            { r.messages <- data }
func (r *connRecorder) OnDisconnect(err error, code int) { r.disconnects <- code }

func wsTestURL(t *testing.T, srv *httptest.Server) url.URL {
	t.Helper()
	u, err := url.Parse(srv.URL)
	if err != nil {
		t.Fatal(err)
	}
	return *u
}

func TestConnectionRoundTrip(t *testing.T) {
	apiKey := make(chan string, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		apiKey <- r.Header.Get("X-Tinode-APIKey")
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer ws.Close()
		for {
			mt, data, err := ws.ReadMessage()
			if err != nil {
				return
			}
			ws.WriteMessage(mt, data)
		}
	}))
	defer srv.Close()

	rec := newConnRecorder()
	c := NewConnection(wsTestURL(t, srv), "key-123", false, rec)

	if c.IsConnected() {
		t.Fatal("unopened connection reports connected")
	}
	if err := c.Send([]byte("x")); err != ErrNotConnected {
		t.Errorf("send on a closed connection returned %v, want ErrNotConnected", err)
	}

	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	select {
	case reconnected := <-rec.connects:
		if reconnected {
			t.Error("first connect reported as a reconnect")
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the connect callback")
	}
	if got := <-apiKey; got != "key-123" {
		t.Errorf("server saw api key %q", got)
	}
	if !c.IsConnected() {
		t.Error("open connection reports disconnected")
	}
	if err := c.Connect(); err != ErrInvalidState {
		t.Errorf("double connect returned %v, want ErrInvalidState", err)
	}

	if err := c.Send([]byte(`{"hi":{"id":"1"}}`)); err != nil {
		t.Fatal(err)
	}
	select {
	case data := <-rec.messages:
		if string(data) != `{"hi":{"id":"1"}}` {
			t.Errorf("unexpected payload %q", data)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the echoed payload")
	}

	c.Disconnect()
	if c.IsConnected() {
		t.Error("closed connection reports connected")
	}
	// A local disconnect is not reported back through the listener.
	select {
	case code := <-rec.disconnects:
		t.Errorf("local disconnect produced a callback with code %d", code)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestConnectionServerClose(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		ws.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "bye"))
		ws.Close()
	}))
	defer srv.Close()

	rec := newConnRecorder()
	c := NewConnection(wsTestURL(t, srv), "key", false, rec)
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}

	select {
	case code := <-rec.disconnects:
		if code != websocket.CloseGoingAway {
			t.Errorf("close code = %d, want %d", code, websocket.CloseGoingAway)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the disconnect callback")
	}
	if c.IsConnected() {
		t.Error("lost connection reports connected")
	}
}

func TestConnectionReconnect(t *testing.T) {
	var mu sync.Mutex
	conns := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		conns++
		n := conns
		mu.Unlock()
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		if n == 1 {
			// Drop the first connection to force a redial.
			ws.Close()
			return
		}
		defer ws.Close()
		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				return
			}
		}
	}))
	defer srv.Close()

	rec := newConnRecorder()
	c := NewConnection(wsTestURL(t, srv), "key", true, rec)
	if err := c.Connect(); err != nil {
		t.Fatal(err)
	}
	defer c.Disconnect()

	<-rec.connects
	select {
	case <-rec.disconnects:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for the connection loss")
	}
	select {
	case reconnected := <-rec.connects:
		if !reconnected {
			t.Error("redial not reported as a reconnect")
		}
	case <-time.After(10 * time.Second):
		t.Fatal("timed out waiting for the reconnect")
	}
	if !c.IsConnected() {
		t.Error("reconnected connection reports disconnected")
	}
}

func TestExpBackoffSteps(t *testing.T) {
	var b ExpBackoffSteps
	prevCap := time.Duration(0)
	for i := 0; i < 4; i++ {
		low := backoffBaseDelay << i
		d := b.NextDelay()
		if d < low || d >= 2*low {
			t.Errorf("delay %d = %v, want [%v, %v)", i, d, low, 2*low)
		}
		if low < prevCap {
			t.Errorf("delay floor shrank at step %d", i)
		}
		prevCap = low
	}

	b.Reset()
	if d := b.NextDelay(); d >= 2*backoffBaseDelay {
		t.Errorf("delay after reset = %v, want < %v", d, 2*backoffBaseDelay)
	}
}
