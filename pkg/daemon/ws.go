package daemon

import (
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/charlie0129/gazeserver/pkg/broadcast"
)

const (
	wsWriteWait    = 5 * time.Second
	wsMaxReadBytes = 4096
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Subscribers are not authenticated; any origin may connect.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// wsSubscriber is a websocket client receiving gaze samples as text frames.
type wsSubscriber struct {
	id     string
	conn   *websocket.Conn
	log    *logrus.Entry
	closed chan struct{}

	// One writer at a time; a handle registered twice has two senders.
	writeMu   sync.Mutex
	closeOnce sync.Once
}

var _ broadcast.Subscriber = &wsSubscriber{}

func newWSSubscriber(conn *websocket.Conn) *wsSubscriber {
	id := uuid.NewString()
	return &wsSubscriber{
		id:     id,
		conn:   conn,
		closed: make(chan struct{}),
		log: logrus.WithFields(logrus.Fields{
			"session": id,
			"remote":  conn.RemoteAddr().String(),
		}),
	}
}

// Send writes msg as one text frame. A failed write closes the connection,
// which ends the read loop and removes the subscriber.
func (s *wsSubscriber) Send(msg []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	select {
	case <-s.closed:
		return websocket.ErrCloseSent
	default:
	}

	_ = s.conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := s.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
		s.log.WithError(err).Debug("websocket write failed")
		go s.Close()
		return err
	}
	return nil
}

func (s *wsSubscriber) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.closed)
		deadline := time.Now().Add(time.Second)
		_ = s.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), deadline)
		err = s.conn.Close()
	})
	return err
}

// serveWS upgrades the request and registers the connection as a sample
// subscriber until the peer goes away.
func serveWS(c *gin.Context) {
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// The upgrader has already replied with an HTTP error.
		logrus.WithError(err).Warn("websocket upgrade failed")
		return
	}

	sub := newWSSubscriber(conn)
	registry.Add(sub)
	sub.log.WithField("subscribers", registry.Len()).Info("subscriber connected")

	conn.SetReadLimit(wsMaxReadBytes)
	for {
		// Inbound frames are ignored; reading surfaces disconnects and
		// answers pings.
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				sub.log.WithError(err).Debug("websocket read failed")
			}
			break
		}
	}

	registry.RemoveSubscriber(sub)
	_ = sub.Close()
	sub.log.WithField("subscribers", registry.Len()).Info("subscriber disconnected")
}
