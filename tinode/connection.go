package tinode

/******************************************************************************
 *
 *  Description :
 *
 *    Websocket connection to the server: dialing with API key handshake,
 *    read loop, and automatic reconnects with exponential backoff.
 *
 *****************************************************************************/

import (
	"math/rand"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/tinode/gosdk/logs"
)

const (
	// Time to wait for the websocket handshake to complete.
	handshakeTimeout = 10 * time.Second
	// Base reconnect delay.
	backoffBaseDelay = 500 * time.Millisecond
	// Maximum number of doublings of the base delay.
	backoffMaxShift = 11
)

// ExpBackoffSteps produces exponentially growing randomized delays:
// base * 2^i * (1 + jitter), i capped at backoffMaxShift.
type ExpBackoffSteps struct {
	attempt int
}

// NextDelay returns the delay to sleep before the next attempt.
func (b *ExpBackoffSteps) NextDelay() time.Duration {
	i := b.attempt
	if i > backoffMaxShift {
		i = backoffMaxShift
	}
	b.attempt++
	return time.Duration(float64(backoffBaseDelay) * float64(int(1)<<i) * (1 + rand.Float64()))
}

// Reset makes the next delay start over from the base.
func (b *ExpBackoffSteps) Reset() {
	b.attempt = 0
}

// ConnectionListener receives connection lifecycle events and raw server
// payloads. Callbacks fire on the connection's read goroutine.
type ConnectionListener interface {
	// OnConnect is called when the connection (re)opens.
	OnConnect(reconnected bool)
	// OnMessage is called for every payload received from the server.
	OnMessage(data []byte)
	// OnDisconnect is called when the connection is lost or closed. The code
	// is the websocket close code when the server originated the shutdown.
	OnDisconnect(err error, code int)
}

// Conn is the transport the client talks through. Satisfied by *Connection;
// tests substitute their own.
type Conn interface {
	Connect() error
	Disconnect()
	Send(data []byte) error
	IsConnected() bool
}

// Connection is a websocket connection with optional auto-reconnect.
type Connection struct {
	endpoint url.URL
	apiKey   string
	listener ConnectionListener

	lock sync.Mutex
	ws   *websocket.Conn
	// Generation of the websocket, to tell a stale read loop from a live one.
	gen int

	connected     bool
	autoReconnect bool
	// True between a connection loss and a successful redial.
	reconnecting bool
	backoff      ExpBackoffSteps
	// Closed to abort a reconnect sleep.
	cancelBackoff chan struct{}
}

// NewConnection creates an unopened connection. The endpoint is the server's
// base URL, e.g. "wss://api.tinode.co"; the channel path is appended. An
// "http(s)" scheme is converted to "ws(s)".
func NewConnection(endpoint url.URL, apiKey string, autoReconnect bool, listener ConnectionListener) *Connection {
	switch endpoint.Scheme {
	case "http":
		endpoint.Scheme = "ws"
	case "https":
		endpoint.Scheme = "wss"
	}
	if endpoint.Path == "" || endpoint.Path == "/" {
		endpoint.Path = "/v0/channels"
	}
	return &Connection{
		endpoint:      endpoint,
		apiKey:        apiKey,
		listener:      listener,
		autoReconnect: autoReconnect,
		cancelBackoff: make(chan struct{}),
	}
}

// Connect dials the server. On success the read loop starts and the listener
// gets OnConnect.
func (c *Connection) Connect() error {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.dialLocked(false)
}

func (c *Connection) dialLocked(reconnected bool) error {
	if c.connected {
		return ErrInvalidState
	}

	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	hdr := http.Header{}
	hdr.Set("X-Tinode-APIKey", c.apiKey)

	ws, _, err := dialer.Dial(c.endpoint.String(), hdr)
	if err != nil {
		return err
	}

	c.ws = ws
	c.gen++
	c.connected = true
	c.reconnecting = false
	c.backoff.Reset()

	go c.readLoop(ws, c.gen)
	if c.listener != nil {
		go c.listener.OnConnect(reconnected)
	}
	return nil
}

// Disconnect closes the connection and stops reconnect attempts.
func (c *Connection) Disconnect() {
	c.lock.Lock()
	ws := c.ws
	wasReconnecting := c.reconnecting
	c.connected = false
	c.reconnecting = false
	c.ws = nil
	c.gen++
	c.lock.Unlock()

	if ws != nil {
		ws.Close()
	}
	if wasReconnecting {
		// Wake up and cancel the backoff sleeper.
		close(c.cancelBackoff)
		c.lock.Lock()
		c.cancelBackoff = make(chan struct{})
		c.lock.Unlock()
	}
}

// IsConnected checks if the websocket is live.
func (c *Connection) IsConnected() bool {
	c.lock.Lock()
	defer c.lock.Unlock()
	return c.connected
}

// Send writes one payload to the socket.
func (c *Connection) Send(data []byte) error {
	c.lock.Lock()
	ws := c.ws
	c.lock.Unlock()
	if ws == nil {
		return ErrNotConnected
	}
	return ws.WriteMessage(websocket.TextMessage, data)
}

func (c *Connection) readLoop(ws *websocket.Conn, gen int) {
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			c.lock.Lock()
			stale := c.gen != gen
			c.lock.Unlock()
			if stale {
				// Closed locally by Disconnect or superseded by a redial.
				return
			}
			c.handleConnectionLost(err)
			return
		}
		if c.listener != nil {
			c.listener.OnMessage(data)
		}
	}
}

func (c *Connection) handleConnectionLost(err error) {
	code := 0
	if closeErr, ok := err.(*websocket.CloseError); ok {
		code = closeErr.Code
	}

	c.lock.Lock()
	c.connected = false
	c.ws = nil
	restart := c.autoReconnect
	c.reconnecting = restart
	c.lock.Unlock()

	if c.listener != nil {
		c.listener.OnDisconnect(err, code)
	}
	if restart {
		go c.reconnectLoop()
	}
}

func (c *Connection) reconnectLoop() {
	for {
		c.lock.Lock()
		if !c.reconnecting {
			c.lock.Unlock()
			return
		}
		delay := c.backoff.NextDelay()
		cancel := c.cancelBackoff
		c.lock.Unlock()

		select {
		case <-time.After(delay):
		case <-cancel:
			return
		}

		c.lock.Lock()
		if !c.reconnecting {
			c.lock.Unlock()
			return
		}
		err := c.dialLocked(true)
		c.lock.Unlock()
		if err == nil {
			return
		}
		logs.Warning.Println("reconnect failed:", err)
	}
}
