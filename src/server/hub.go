package server

import (
	"context"
	"net/http"
	"time"

	"regatta-live/src/models"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
	"github.com/gorilla/websocket"
)

// -----------------------------------------------------------------------------
// WebSocket Handlers
// -----------------------------------------------------------------------------

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// -----------------------------------------------------------------------------

// handleWebSocket upgrades the request and attaches the connection to the race
// channel. The channel delivers the full fleet state before any increment.
func (s *APIServer) handleWebSocket(c *gin.Context) {
	raceID := c.Param("raceId")

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.Logger.Info("Failed to upgrade websocket: %v", err)
		return
	}

	client := newClient(s, conn, s.Config.Tracking.SubscriberBuffer)

	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	channel, _, err := s.registry.Subscribe(ctx, raceID, client)
	cancel()
	if err != nil {
		s.Logger.Warning("Subscribe to race %s failed: %v", raceID, err)
		conn.SetWriteDeadline(time.Now().Add(writeWait))
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(closeCodeFor(err), err.Error()))
		conn.Close()
		return
	}
	client.channel = channel

	s.Logger.Debug("Viewer %s attached to race %s", client.id, raceID)

	go client.writePump()
	go client.readPump()
}

// -----------------------------------------------------------------------------

// HandleClientMessage serves viewer commands. Unknown commands are ignored,
// malformed frames close the connection.
func (s *APIServer) HandleClientMessage(client *Client, message []byte) {
	var cmd models.MClientCommand
	if err := json.Unmarshal(message, &cmd); err != nil {
		s.Logger.Info("Failed to parse client command: %v, disconnecting client", err)
		client.conn.Close()
		return
	}

	switch cmd.Command {
	case models.CommandSnapshot:
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := client.channel.Resend(ctx, client); err != nil {
			s.Logger.Info("State resend to viewer %s failed: %v", client.id, err)
		}
	case models.CommandPing:
		// keep-alive only
	}
}

// -----------------------------------------------------------------------------

func closeCodeFor(err error) int {
	switch statusFor(err) {
	case http.StatusBadRequest, http.StatusNotFound:
		return websocket.ClosePolicyViolation
	case http.StatusServiceUnavailable:
		return websocket.CloseTryAgainLater
	default:
		return websocket.CloseInternalServerErr
	}
}
