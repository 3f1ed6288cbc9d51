// Package realtime pushes catalog updates to browser clients over WebSocket
// and accepts catalog commands from them.
package realtime

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/gorilla/websocket"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"

	"github.com/xenking/kart-shop/internal/domain"
	"github.com/xenking/kart-shop/internal/domain/product"
	"github.com/xenking/kart-shop/internal/wire"
)

// Event names exchanged with clients.
const (
	EventUpdateProducts = "updateProducts"
	EventAddProduct     = "addProduct"
	EventDeleteProduct  = "deleteProduct"
	EventError          = "error"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 << 10

	defaultSendBuffer = 256
)

// Catalog is the part of the product service available to socket clients.
type Catalog interface {
	Snapshot(ctx context.Context) ([]product.Product, error)
	Create(ctx context.Context, in product.CreateInput) (*product.Product, error)
	Delete(ctx context.Context, id string) (*product.Product, error)
}

// Config configures a Hub.
type Config struct {
	// SendBuffer is the number of frames queued per client before new
	// frames are dropped for that client.
	SendBuffer int
	// AllowedOrigins restricts the Origin header of upgrade requests.
	// Empty allows any origin.
	AllowedOrigins []string
}

// Hub tracks connected clients and fans frames out to them. Hub implements
// product.Publisher.
type Hub struct {
	upgrader   websocket.Upgrader
	sendBuffer int

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool

	connected  metric.Int64UpDownCounter
	broadcasts metric.Int64Counter
	dropped    metric.Int64Counter
}

var _ product.Publisher = (*Hub)(nil)

// NewHub creates a Hub recording its metrics with meter.
func NewHub(cfg Config, meter metric.Meter) (*Hub, error) {
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = defaultSendBuffer
	}
	h := &Hub{
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin(cfg.AllowedOrigins),
		},
		sendBuffer: cfg.SendBuffer,
		clients:    make(map[*client]struct{}),
	}

	var err error
	if h.connected, err = meter.Int64UpDownCounter("shop.realtime.clients",
		metric.WithDescription("Connected realtime clients"),
	); err != nil {
		return nil, errors.Wrap(err, "clients gauge")
	}
	if h.broadcasts, err = meter.Int64Counter("shop.realtime.broadcasts",
		metric.WithDescription("Frames fanned out to all clients"),
	); err != nil {
		return nil, errors.Wrap(err, "broadcasts counter")
	}
	if h.dropped, err = meter.Int64Counter("shop.realtime.dropped",
		metric.WithDescription("Frames dropped for clients with a full send buffer"),
	); err != nil {
		return nil, errors.Wrap(err, "dropped counter")
	}
	return h, nil
}

func checkOrigin(allowed []string) func(r *http.Request) bool {
	if len(allowed) == 0 {
		return func(*http.Request) bool { return true }
	}
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		for _, a := range allowed {
			if a == "*" || a == origin {
				return true
			}
		}
		return false
	}
}

// Publish sends the catalog to every connected client.
func (h *Hub) Publish(ctx context.Context, products []product.Product) error {
	h.Broadcast(ctx, updateFrame(products))
	return nil
}

// Broadcast enqueues frame for every client without blocking. Clients whose
// buffer is full miss the frame.
func (h *Hub) Broadcast(ctx context.Context, frame []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		if !c.enqueue(frame) {
			h.dropped.Add(ctx, 1)
		}
	}
	h.broadcasts.Add(ctx, 1)
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close disconnects all clients and rejects new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
		h.connected.Add(context.Background(), -1)
	}
}

// Handler returns the WebSocket endpoint. Each client receives the current
// catalog on connect; its addProduct and deleteProduct messages are applied
// through catalog.
func (h *Hub) Handler(catalog Catalog) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		lg := zctx.From(ctx)

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			// Upgrade has already replied with an HTTP error.
			lg.Debug("Websocket upgrade failed", zap.Error(err))
			return
		}

		c := &client{
			hub:     h,
			conn:    conn,
			send:    make(chan []byte, h.sendBuffer),
			catalog: catalog,
			lg:      lg,
		}
		if !h.register(ctx, c) {
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
				time.Now().Add(writeWait))
			_ = conn.Close()
			return
		}

		products, err := catalog.Snapshot(ctx)
		if err != nil {
			lg.Warn("Catalog snapshot failed", zap.Error(err))
			h.sendTo(c, errorFrame("catalog unavailable"))
		} else {
			h.sendTo(c, updateFrame(products))
		}

		go c.writePump()
		c.readPump(ctx)
	})
}

func (h *Hub) register(ctx context.Context, c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return false
	}
	h.clients[c] = struct{}{}
	h.connected.Add(ctx, 1)
	return true
}

// sendTo enqueues frame for c unless c has already left.
func (h *Hub) sendTo(c *client, frame []byte) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if _, ok := h.clients[c]; !ok {
		return false
	}
	return c.enqueue(frame)
}

func (h *Hub) unregister(ctx context.Context, c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
	h.connected.Add(ctx, -1)
}

// client is one connection. send is closed by the hub, under its lock, when
// the client leaves, so frames are only enqueued while holding that lock.
type client struct {
	hub     *Hub
	conn    *websocket.Conn
	send    chan []byte
	catalog Catalog
	lg      *zap.Logger
}

func (c *client) enqueue(frame []byte) bool {
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *client) readPump(ctx context.Context) {
	defer c.hub.unregister(ctx, c)

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.lg.Debug("Websocket closed unexpectedly", zap.Error(err))
			}
			return
		}
		if err := c.handle(ctx, data); err != nil {
			c.reject(err)
		}
	}
}

// handle applies one inbound message. Successful commands reach every client
// through the catalog's publisher.
func (c *client) handle(ctx context.Context, data []byte) error {
	msg, err := wire.DecodeMessage(data)
	if err != nil {
		return err
	}
	switch msg.Event {
	case EventAddProduct:
		in, err := wire.DecodeSocketProduct(msg.Payload)
		if err != nil {
			return err
		}
		p, err := c.catalog.Create(ctx, in)
		if err != nil {
			return err
		}
		c.lg.Info("Product added over websocket", zap.String("product_id", p.ID))
	case EventDeleteProduct:
		id, err := wire.DecodeSocketID(msg.Payload)
		if err != nil {
			return err
		}
		if _, err := c.catalog.Delete(ctx, id); err != nil {
			return err
		}
		c.lg.Info("Product deleted over websocket", zap.String("product_id", id))
	default:
		return domain.Invalid("event", "unknown event "+msg.Event)
	}
	return nil
}

// reject answers the sender alone with an error event. Failures outside the
// client-facing kinds are logged and reported generically.
func (c *client) reject(err error) {
	switch domain.KindOf(err) {
	case domain.ErrInvalidIdentity, domain.ErrInvalidInput, domain.ErrNotFound, domain.ErrConflict:
		c.hub.sendTo(c, errorFrame(err.Error()))
	default:
		c.lg.Error("Websocket command failed", zap.Error(err))
		c.hub.sendTo(c, errorFrame("internal server error"))
	}
}

func updateFrame(products []product.Product) []byte {
	return wire.Event(EventUpdateProducts, wire.ProductsPayload(products))
}

func errorFrame(msg string) []byte {
	return wire.Event(EventError, wire.MessagePayload(msg))
}
