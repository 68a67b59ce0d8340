package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/printrelay/backend/internal/logging"
	"github.com/printrelay/backend/internal/upload"
)

// WebSocket message types for the job stream
const (
	// Client -> Server messages
	MsgTypePing   = "ping"
	MsgTypeCancel = "cancel"

	// Server -> Client messages
	MsgTypeConnected = "connected"
	MsgTypePong      = "pong"
	MsgTypeError     = "error"
)

// WSMessage is the envelope of every frame. Job events use the event type
// ("progress", "estimate", "status") as Type and the job as Payload.
type WSMessage struct {
	Type      string          `json:"type"`
	ID        string          `json:"id,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	Timestamp int64           `json:"timestamp"`
}

// WSErrorResponse is the payload of an error frame
type WSErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

const wsWriteWait = 10 * time.Second

// WebSocketHandler streams job events to the browser
type WebSocketHandler struct {
	jobMgr   *upload.Manager
	upgrader websocket.Upgrader
	log      *zap.Logger
}

// NewJobStreamHandler creates a new WebSocket job stream handler
func NewJobStreamHandler(jobMgr *upload.Manager, log *zap.Logger) JobStreamHandler {
	return &WebSocketHandler{
		jobMgr: jobMgr,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				// Origins are enforced by the CORS middleware
				return true
			},
			ReadBufferSize:  4 * 1024,
			WriteBufferSize: 16 * 1024,
		},
		log: log,
	}
}

// HandleJobStream upgrades the connection and forwards job events until the
// job finishes or the client goes away
func (wsh *WebSocketHandler) HandleJobStream(c echo.Context) error {
	jobID := c.Param("jobId")
	events, unsubscribe, err := wsh.jobMgr.Subscribe(jobID)
	if err != nil {
		return NewNotFoundError("job", jobID)
	}
	defer unsubscribe()

	ws, err := wsh.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		return err
	}
	defer ws.Close()

	log := wsh.log.With(zap.String("job_id", logging.ShortID(jobID)))
	log.Debug("job stream connected")

	// Current state first so late subscribers are not left blank
	if job, ok := wsh.jobMgr.GetJob(jobID); ok {
		wsh.send(ws, WSMessage{Type: MsgTypeConnected, ID: jobID, Payload: mustJSON(job)})
	}

	// Reader: the only client messages are ping and cancel
	clientMsgs := make(chan WSMessage)
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			var msg WSMessage
			if err := ws.ReadJSON(&msg); err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Debug("job stream read failed", zap.Error(err))
				}
				return
			}
			select {
			case clientMsgs <- msg:
			case <-c.Request().Context().Done():
				return
			}
		}
	}()

	for {
		select {
		case ev, open := <-events:
			if !open {
				ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
				ws.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "job finished"))
				log.Debug("job stream finished")
				return nil
			}
			if err := wsh.send(ws, WSMessage{Type: ev.Type, ID: jobID, Payload: mustJSON(ev.Job)}); err != nil {
				return nil
			}
		case msg := <-clientMsgs:
			switch msg.Type {
			case MsgTypePing:
				wsh.send(ws, WSMessage{Type: MsgTypePong, ID: jobID})
			case MsgTypeCancel:
				wsh.jobMgr.Cancel(jobID)
			default:
				wsh.sendError(ws, "Unknown message type: "+msg.Type, "INVALID_TYPE")
			}
		case <-closed:
			log.Debug("job stream client disconnected")
			return nil
		}
	}
}

func (wsh *WebSocketHandler) send(ws *websocket.Conn, msg WSMessage) error {
	msg.Timestamp = time.Now().UnixMilli()
	ws.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := ws.WriteJSON(msg); err != nil {
		wsh.log.Debug("websocket write failed", zap.Error(err))
		return err
	}
	return nil
}

func (wsh *WebSocketHandler) sendError(ws *websocket.Conn, message, code string) {
	wsh.send(ws, WSMessage{
		Type:    MsgTypeError,
		Payload: mustJSON(WSErrorResponse{Message: message, Code: code}),
	})
}

func mustJSON(v interface{}) json.RawMessage {
	data, err := json.Marshal(v)
	if err != nil {
		return nil
	}
	return data
}
