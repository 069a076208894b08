// SPDX-License-Identifier: MIT
package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/voice-analyzer/voice-analyzer-ios/internal/log"
)

// Codec names accepted by NewWebSocketTransport.
const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

// ErrUnknownCodec is returned for codecs other than json and msgpack.
var ErrUnknownCodec = errors.New("transport: unknown codec")

// Envelope wraps every broadcast message with the id of the session that
// produced it, so clients can tell restarts apart.
type Envelope struct {
	Session string `json:"session" msgpack:"session"`
	Data    any    `json:"data" msgpack:"data"`
}

// WebSocketTransport broadcasts messages to every connected client.
// JSON messages go out as text frames, msgpack as binary frames.
type WebSocketTransport struct {
	path     string
	codec    string
	session  string
	upgrader websocket.Upgrader
	log      *log.Logger

	clients   map[*websocket.Conn]bool
	clientsMu sync.Mutex
	broadcast chan any
	done      chan struct{}
	closeOnce sync.Once

	listener net.Listener
	server   *http.Server
}

// NewWebSocketTransport listens on addr and serves clients on path.
func NewWebSocketTransport(addr, path, codec string) (*WebSocketTransport, error) {
	if codec != CodecJSON && codec != CodecMsgpack {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCodec, codec)
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	wst := &WebSocketTransport{
		path:    path,
		codec:   codec,
		session: uuid.NewString(),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
		log:       log.Named("websocket"),
		clients:   make(map[*websocket.Conn]bool),
		broadcast: make(chan any, 256),
		done:      make(chan struct{}),
		listener:  ln,
	}
	wst.start()
	return wst, nil
}

// Addr returns the address the server listens on.
func (wst *WebSocketTransport) Addr() net.Addr {
	return wst.listener.Addr()
}

// Session returns the id stamped on every message.
func (wst *WebSocketTransport) Session() string {
	return wst.session
}

// ClientCount returns the number of connected clients.
func (wst *WebSocketTransport) ClientCount() int {
	wst.clientsMu.Lock()
	defer wst.clientsMu.Unlock()
	return len(wst.clients)
}

func (wst *WebSocketTransport) start() {
	mux := http.NewServeMux()
	mux.HandleFunc(wst.path, wst.handleWebSocket)
	wst.server = &http.Server{Handler: mux}

	go func() {
		wst.log.Infof("serving %s on %s (session %s, %s)", wst.path, wst.listener.Addr(), wst.session, wst.codec)
		if err := wst.server.Serve(wst.listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			wst.log.Errorf("server error: %v", err)
		}
	}()

	go wst.handleBroadcasts()
}

func (wst *WebSocketTransport) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := wst.upgrader.Upgrade(w, r, nil)
	if err != nil {
		wst.log.Warnf("upgrade error: %v", err)
		return
	}

	wst.clientsMu.Lock()
	wst.clients[conn] = true
	n := len(wst.clients)
	wst.clientsMu.Unlock()
	wst.log.Infof("client connected, total: %d", n)

	// Clients never send; the first read error means they went away.
	go func() {
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
		}
		wst.clientsMu.Lock()
		delete(wst.clients, conn)
		n := len(wst.clients)
		wst.clientsMu.Unlock()
		conn.Close()
		wst.log.Infof("client disconnected, total: %d", n)
	}()
}

func (wst *WebSocketTransport) handleBroadcasts() {
	for {
		select {
		case <-wst.done:
			return
		case data := <-wst.broadcast:
			msgType, payload, err := wst.encode(data)
			if err != nil {
				wst.log.Errorf("encode %T: %v", data, err)
				continue
			}
			wst.clientsMu.Lock()
			for client := range wst.clients {
				if err := client.WriteMessage(msgType, payload); err != nil {
					wst.log.Warnf("error sending to client: %v", err)
					client.Close()
					delete(wst.clients, client)
				}
			}
			wst.clientsMu.Unlock()
		}
	}
}

func (wst *WebSocketTransport) encode(data any) (int, []byte, error) {
	env := Envelope{Session: wst.session, Data: data}
	if wst.codec == CodecMsgpack {
		b, err := msgpack.Marshal(env)
		return websocket.BinaryMessage, b, err
	}
	b, err := json.Marshal(env)
	return websocket.TextMessage, b, err
}

// Send queues data for broadcast and drops it when the queue is full.
func (wst *WebSocketTransport) Send(data any) error {
	select {
	case <-wst.done:
		return net.ErrClosed
	default:
	}
	select {
	case wst.broadcast <- data:
	default:
		wst.log.Debugf("broadcast queue full, dropping %T", data)
	}
	return nil
}

// Close disconnects every client and shuts the server down.
func (wst *WebSocketTransport) Close() error {
	var err error
	wst.closeOnce.Do(func() {
		wst.log.Infof("closing server")
		close(wst.done)

		wst.clientsMu.Lock()
		for client := range wst.clients {
			client.Close()
		}
		wst.clients = make(map[*websocket.Conn]bool)
		wst.clientsMu.Unlock()

		err = wst.server.Close()
	})
	return err
}

var _ Transport = (*WebSocketTransport)(nil)
