package daemon

import (
	"context"
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mkade/foreman/internal/protocol"
)

// clientConnection is one attached websocket client. It implements
// broadcast.Sink so the broadcaster can deliver events directly.
type clientConnection struct {
	id           string
	kind         string
	ws           *websocket.Conn
	connectedAt  time.Time
	lastActivity time.Time

	// writeMu serializes writes; gorilla permits one concurrent writer.
	writeMu sync.Mutex
	mu      sync.Mutex
	closed  bool
}

// ID implements broadcast.Sink.
func (c *clientConnection) ID() string { return c.id }

// Send implements broadcast.Sink by writing an event envelope.
func (c *clientConnection) Send(ev protocol.Event) error {
	frame, err := protocol.EncodeEvent(ev)
	if err != nil {
		return err
	}
	return c.write(frame)
}

func (c *clientConnection) write(frame []byte) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return websocket.ErrCloseSent
	}
	c.mu.Unlock()

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	c.ws.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.ws.WriteMessage(websocket.TextMessage, frame)
}

func (c *clientConnection) sendResponse(resp protocol.Response) {
	frame, err := protocol.EncodeResponse(resp)
	if err != nil {
		log.Printf("[daemon] encode response for %s: %v", c.id, err)
		return
	}
	if err := c.write(frame); err != nil {
		log.Printf("[daemon] write response to %s: %v", c.id, err)
	}
}

// sendError notifies only this connection about a frame it sent that the
// daemon could not process.
func (c *clientConnection) sendError(msg string) {
	err := c.Send(protocol.Event{
		Event:     protocol.EventError,
		Data:      map[string]interface{}{"error": msg},
		Timestamp: time.Now(),
	})
	if err != nil {
		log.Printf("[daemon] write error event to %s: %v", c.id, err)
	}
}

func (c *clientConnection) markClosed() {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
}

func (c *clientConnection) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// classifyClient determines the client kind from the declared header,
// falling back to user-agent heuristics.
func classifyClient(r *http.Request) string {
	if kind := r.Header.Get("X-Foreman-Client"); kind != "" {
		return kind
	}
	ua := strings.ToLower(r.Header.Get("User-Agent"))
	switch {
	case strings.Contains(ua, "foreman"):
		return "cli"
	case strings.Contains(ua, "unity"):
		return "unity"
	case strings.Contains(ua, "mozilla"):
		return "browser"
	default:
		return "unknown"
	}
}

// readLoop decodes request envelopes until the transport closes. Malformed
// frames are reported back to the sender and dropped; they do not close the
// connection.
func (d *Daemon) readLoop(ctx context.Context, c *clientConnection) {
	defer d.disconnect(c)
	for {
		_, data, err := c.ws.ReadMessage()
		if err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) &&
				!strings.Contains(err.Error(), "use of closed network connection") {
				log.Printf("[daemon] read from %s: %v", c.id, err)
			}
			return
		}
		c.touch()

		env, err := protocol.Decode(data)
		if err != nil {
			log.Printf("[daemon] malformed frame from %s: %v", c.id, err)
			c.sendError(err.Error())
			continue
		}
		if env.Type != protocol.TypeRequest {
			log.Printf("[daemon] unexpected %s envelope from %s dropped", env.Type, c.id)
			c.sendError("unexpected " + env.Type + " envelope")
			continue
		}
		req, err := env.DecodeRequest()
		if err != nil {
			log.Printf("[daemon] malformed request from %s: %v", c.id, err)
			c.sendError(err.Error())
			continue
		}
		d.handleRequest(ctx, c, *req)
	}
}

// handleRequest runs one command round-trip. Handler errors never escape as
// transport failures; they become {success:false} responses.
func (d *Daemon) handleRequest(ctx context.Context, c *clientConnection, req protocol.Request) {
	// Transport-level commands bypass the router.
	switch req.Cmd {
	case "subscribe", "unsubscribe":
		d.handleSubscription(c, req)
		return
	case "daemon.recheck":
		if err := d.Recheck(); err != nil {
			c.sendResponse(protocol.Response{ID: req.ID, Success: false, Error: err.Error()})
			return
		}
		c.sendResponse(protocol.Response{ID: req.ID, Success: true, Message: "dependency re-check passed"})
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()

	result, err := d.router.Dispatch(reqCtx, req.Cmd, req.Params)
	if err != nil {
		c.sendResponse(protocol.Response{
			ID:      req.ID,
			Success: false,
			Error:   err.Error(),
		})
		return
	}
	c.sendResponse(protocol.Response{
		ID:      req.ID,
		Success: true,
		Data:    result.Data,
		Message: result.Message,
	})
}

func (d *Daemon) handleSubscription(c *clientConnection, req protocol.Request) {
	sessionID, _ := req.Params["sessionId"].(string)
	if sessionID == "" {
		c.sendResponse(protocol.Response{
			ID:      req.ID,
			Success: false,
			Error:   protocol.MissingParameter("sessionId").Error(),
		})
		return
	}
	if req.Cmd == "subscribe" {
		d.bus.SubscribeToSession(c.id, sessionID)
	} else {
		d.bus.UnsubscribeFromSession(c.id, sessionID)
	}
	c.sendResponse(protocol.Response{
		ID:      req.ID,
		Success: true,
		Message: req.Cmd + "d to " + sessionID,
	})
}
