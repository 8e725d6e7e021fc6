package api

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"ambulance-dispatch-backend/internal/broadcast"
	"ambulance-dispatch-backend/internal/parse"
)

const (
	wsReadLimit    = 4096
	wsWriteTimeout = 10 * time.Second
	wsPongWait     = 60 * time.Second
	wsPingPeriod   = 30 * time.Second
)

// Inbound socket message types.
const (
	msgUpdateLocation      = "update_location"
	msgRequestCurrentSpeed = "request_current_speed"
	msgRequestAverageSpeed = "request_average_speed"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsMessage struct {
	Type        string   `json:"type"`
	AmbulanceID uint     `json:"ambulance_id"`
	Latitude    *float64 `json:"latitude"`
	Longitude   *float64 `json:"longitude"`
}

type wsError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ServeWS bridges the broadcast hub onto a websocket. ambulance_id limits the
// stream to one request; without it every event is delivered.
func (h *Handler) ServeWS(c *gin.Context) {
	var ambulanceID uint
	if raw := c.Query("ambulance_id"); raw != "" {
		id, err := parse.ID(raw)
		if err != nil {
			h.fail(c, err)
			return
		}
		ambulanceID = id
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.WithError(err).Warn("websocket upgrade failed")
		return
	}
	defer conn.Close()

	log := h.log.WithField("ambulance_id", ambulanceID)
	sub := h.hub.Subscribe(ambulanceID)
	defer sub.Close()

	ctx, cancel := context.WithCancel(c.Request.Context())
	defer cancel()

	replies := make(chan any, 8)
	done := make(chan struct{})
	go func() {
		defer close(done)
		h.writeLoop(ctx, conn, sub, replies)
		cancel()
		// Unblocks a pending read once the writer is gone.
		conn.Close()
	}()

	log.Debug("websocket client connected")
	h.readLoop(ctx, conn, replies, log)
	cancel()
	<-done
	log.Debug("websocket client disconnected")
}

func (h *Handler) readLoop(ctx context.Context, conn *websocket.Conn, replies chan<- any, log logrus.FieldLogger) {
	conn.SetReadLimit(wsReadLimit)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})

	for {
		messageType, payload, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.WithError(err).Warn("websocket closed unexpectedly")
			}
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg wsMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			h.reply(ctx, replies, wsError{Type: "error", Message: "malformed message"})
			continue
		}
		if err := h.handleMessage(ctx, msg); err != nil {
			_, body := classify(err)
			h.reply(ctx, replies, wsError{Type: "error", Message: body.Message})
		}
	}
}

func (h *Handler) reply(ctx context.Context, replies chan<- any, v any) {
	select {
	case replies <- v:
	case <-ctx.Done():
	}
}

// handleMessage runs one inbound request. Results reach the client through the
// hub like any other event.
func (h *Handler) handleMessage(ctx context.Context, msg wsMessage) error {
	switch msg.Type {
	case msgUpdateLocation:
		if msg.Latitude == nil || msg.Longitude == nil {
			return errMissingCoordinates
		}
		_, err := h.pipeline.Ingest(ctx, msg.AmbulanceID, *msg.Latitude, *msg.Longitude)
		return err
	case msgRequestCurrentSpeed:
		speed, err := h.pipeline.CurrentSpeed(ctx, msg.AmbulanceID)
		if err != nil {
			return err
		}
		h.hub.Publish(broadcast.NewEvent(broadcast.TypeCurrentSpeedUpdate, msg.AmbulanceID,
			broadcast.SpeedUpdate{AmbulanceID: msg.AmbulanceID, SpeedKmh: speed}))
	case msgRequestAverageSpeed:
		speed, err := h.pipeline.AverageSpeedFor(ctx, msg.AmbulanceID)
		if err != nil {
			return err
		}
		h.hub.Publish(broadcast.NewEvent(broadcast.TypeAverageSpeedUpdate, msg.AmbulanceID,
			broadcast.SpeedUpdate{AmbulanceID: msg.AmbulanceID, SpeedKmh: speed}))
	default:
		return errUnknownMessage(msg.Type)
	}
	return nil
}

func (h *Handler) writeLoop(ctx context.Context, conn *websocket.Conn, sub *broadcast.Subscription, replies <-chan any) {
	ticker := time.NewTicker(wsPingPeriod)
	defer ticker.Stop()

	write := func(v any) bool {
		_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
		return conn.WriteJSON(v) == nil
	}

	for {
		select {
		case <-ctx.Done():
			_ = conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
			return
		case e, ok := <-sub.Events():
			if !ok || !write(e) {
				return
			}
		case v := <-replies:
			if !write(v) {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteTimeout))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
