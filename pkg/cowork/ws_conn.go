package cowork

import "github.com/gorilla/websocket"

// WSConn adapts a *websocket.Conn to the Conn interface the session hub
// writes through. Concrete, ecosystem-standard adapter — gorilla/
// websocket appears for the identical concern across multiple
// other_examples/ manifests even though the teacher's own go.mod has no
// WebSocket surface at all.
type WSConn struct {
	conn *websocket.Conn
}

// NewWSConn wraps an already-upgraded *websocket.Conn.
func NewWSConn(conn *websocket.Conn) *WSConn {
	return &WSConn{conn: conn}
}

func (c *WSConn) WriteJSON(v any) error { return c.conn.WriteJSON(v) }
func (c *WSConn) Close() error          { return c.conn.Close() }

// ReadLoop drives HandleMessage from the underlying connection's
// messages until a read fails (e.g. the connection closes), then calls
// Leave for connID, matching the cowork
// protocol's read-loop-calls-dispatch design (see Conn's doc comment).
func (c *WSConn) ReadLoop(session *Session, connID string) {
	defer session.Leave(connID)
	for {
		var env Envelope
		if err := c.conn.ReadJSON(&env); err != nil {
			return
		}
		session.HandleMessage(connID, env)
	}
}
