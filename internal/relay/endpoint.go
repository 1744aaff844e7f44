package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const outboundBufferFrames = 64

// TokenValidator checks a session token and returns its subject.
type TokenValidator interface {
	ValidateToken(token string) (string, error)
}

// Endpoint terminates websocket connections and bridges them onto the Hub.
type Endpoint struct {
	hub      *Hub
	tokens   TokenValidator
	logger   *zap.Logger
	upgrader websocket.Upgrader
}

// NewEndpoint constructs a websocket endpoint over the given hub. Browsers
// cannot set an Authorization header on a websocket handshake, so when a
// validator is supplied the session token is expected in the `token` query
// parameter instead. A nil validator leaves the endpoint open.
func NewEndpoint(hub *Hub, tokens TokenValidator, logger *zap.Logger) *Endpoint {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Endpoint{
		hub:    hub,
		tokens: tokens,
		logger: logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP upgrades the request and runs the connection until it closes.
// Leaving every joined room is implicit on disconnect.
func (e *Endpoint) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if e.tokens != nil {
		token := r.URL.Query().Get("token")
		if _, err := e.tokens.ValidateToken(token); err != nil {
			e.logger.Warn("websocket token rejected", zap.Error(err))
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	}

	conn, err := e.upgrader.Upgrade(w, r, nil)
	if err != nil {
		e.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	session := &wsSession{
		endpoint: e,
		conn:     conn,
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan Frame, outboundBufferFrames),
		rooms:    make(map[string]MemberID),
	}
	session.run()
}

// wsSession owns one websocket connection. A single writer goroutine drains
// the outbound queue, so frames relayed from any one sender stay in order.
type wsSession struct {
	endpoint *Endpoint
	conn     *websocket.Conn
	ctx      context.Context
	cancel   context.CancelFunc
	outbound chan Frame
	rooms    map[string]MemberID
	roomsMu  sync.Mutex
}

func (s *wsSession) run() {
	var writer sync.WaitGroup
	writer.Add(1)
	go func() {
		defer writer.Done()
		s.writeLoop()
	}()

	s.readLoop()

	// Cancelling the session context detaches every room membership and
	// stops the writer; the hub drops this member on the next publish.
	s.cancel()
	writer.Wait()
	_ = s.conn.Close()
}

func (s *wsSession) readLoop() {
	for {
		_, payload, err := s.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				s.endpoint.logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}

		var frame Frame
		if err := json.Unmarshal(payload, &frame); err != nil {
			s.endpoint.logger.Warn("malformed realtime frame", zap.Error(err))
			continue
		}
		s.dispatch(frame)
	}
}

func (s *wsSession) dispatch(frame Frame) {
	switch frame.Event {
	case EventJoinDocument:
		s.join(frame.DocumentID)
	case EventSendChanges:
		s.publish(frame.DocumentID, Frame{
			Event:   EventReceiveChanges,
			Changes: frame.Changes,
		})
	case EventNewComment:
		s.publish(frame.DocumentID, Frame{
			Event: EventReceiveComment,
		})
	default:
		s.endpoint.logger.Debug("ignoring unknown realtime event", zap.String("event", frame.Event))
	}
}

func (s *wsSession) join(documentID string) {
	if documentID == "" {
		return
	}
	s.roomsMu.Lock()
	_, already := s.rooms[documentID]
	s.roomsMu.Unlock()
	if already {
		return
	}

	id, stream, _ := s.endpoint.hub.Join(s.ctx, documentID)

	s.roomsMu.Lock()
	s.rooms[documentID] = id
	s.roomsMu.Unlock()

	go func() {
		for {
			select {
			case frame := <-stream:
				select {
				case s.outbound <- frame:
				default:
				}
			case <-s.ctx.Done():
				return
			}
		}
	}()
}

func (s *wsSession) publish(documentID string, frame Frame) {
	s.roomsMu.Lock()
	memberID, joined := s.rooms[documentID]
	s.roomsMu.Unlock()
	if !joined {
		return
	}
	s.endpoint.hub.Publish(documentID, memberID, frame)
}

func (s *wsSession) writeLoop() {
	for {
		select {
		case frame := <-s.outbound:
			if err := s.conn.WriteJSON(frame); err != nil {
				s.endpoint.logger.Warn("websocket write failed", zap.Error(err))
				return
			}
		case <-s.ctx.Done():
			return
		}
	}
}
