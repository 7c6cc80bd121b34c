package handler

import (
	"context"
	"net/http"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const maxInboundFrameSize = 4096

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Map displays connect from any origin
	CheckOrigin: func(r *http.Request) bool { return true },
}

//websocketSubscriber delivers pushed records over a websocket connection. Writes are
//serialized since a websocket connection supports a single concurrent writer.
type websocketSubscriber struct {
	conn      *websocket.Conn
	writeLock chan struct{}
}

func newWebsocketSubscriber(conn *websocket.Conn) *websocketSubscriber {
	return &websocketSubscriber{conn: conn, writeLock: make(chan struct{}, 1)}
}

func (s *websocketSubscriber) Send(ctx context.Context, payload []byte) error {
	select {
	case s.writeLock <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	defer func() { <-s.writeLock }()

	if deadline, ok := ctx.Deadline(); ok {
		s.conn.SetWriteDeadline(deadline)
	}

	err := s.conn.WriteMessage(websocket.TextMessage, payload)
	if err != nil {
		// a failed write leaves the connection unusable, closing it ends the read loop
		s.conn.Close()
	}

	return err
}

//NewWebsocketHandler upgrades the connection and subscribes it to live pushes until the
//remote side disconnects
func NewWebsocketHandler(registry SubscriberRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Warnf("Failed to upgrade websocket connection from %s: %s", r.RemoteAddr, err.Error())
			return
		}

		subscriber := newWebsocketSubscriber(conn)
		handle := registry.Subscribe(subscriber)

		defer func() {
			registry.Unsubscribe(handle)
			conn.Close()
		}()

		conn.SetReadLimit(maxInboundFrameSize)

		// Inbound frames are only keepalives from the client and are discarded
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Infof("Websocket %s closed unexpectedly: %s", handle.String(), err.Error())
				}
				break
			}
		}
	}
}
