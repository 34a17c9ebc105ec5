package dashboard

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/zulandar/procurebot/internal/chat"
	"github.com/zulandar/procurebot/internal/models"
	"github.com/zulandar/procurebot/internal/realtime"
)

// heartbeatInterval keeps idle streams alive through proxies.
var heartbeatInterval = 15 * time.Second

// bubbleEvent is a rendered chat message pushed to the page.
type bubbleEvent struct {
	Sender string `json:"sender"`
	Right  bool   `json:"right"`
	Label  string `json:"label"`
	Body   string `json:"body"`
	Time   string `json:"time"`
}

// statusEvent reports the state of the backend channel.
type statusEvent struct {
	Connected bool   `json:"connected"`
	Error     string `json:"error,omitempty"`
	GaveUp    bool   `json:"gave_up,omitempty"`
}

// events streams a negotiation's chat as SSE. It joins the room as a guest
// and forwards every update until the client goes away; the session is
// closed before the handler returns.
func (h *handlers) events(c *gin.Context) {
	if h.sessions == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"error": "live updates are not configured"})
		return
	}
	id := c.Param("id")
	ctx := c.Request.Context()

	var details models.TargetDetails
	if rec, err := h.records.GetNegotiation(ctx, id); err == nil {
		details = rec.TargetDetails
	}

	sess, err := h.sessions(id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	defer sess.Close()
	if err := sess.Connect(ctx, ""); err != nil {
		c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		return
	}

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	writeSSE(c.Writer, "connected", map[string]string{"negotiation": id})
	c.Writer.Flush()

	heartbeat := time.NewTicker(heartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			writeSSE(c.Writer, "heartbeat", map[string]string{
				"timestamp": time.Now().UTC().Format(time.RFC3339),
			})
			c.Writer.Flush()
		case u, ok := <-sess.Updates():
			if !ok {
				return
			}
			name, payload := sseFor(u, details)
			writeSSE(c.Writer, name, payload)
			c.Writer.Flush()
		}
	}
}

// sseFor maps a realtime update to an SSE event name and payload.
func sseFor(u realtime.Update, details models.TargetDetails) (string, any) {
	switch u.Kind {
	case realtime.UpdateMessage:
		return "message", toBubbleEvent(chat.RenderBubble(u.Message, details))
	case realtime.UpdateConcluded:
		return "concluded", toBubbleEvent(chat.RenderBubble(chat.ConcludedMessage(u.Closer, u.Time), details))
	default:
		ev := statusEvent{Connected: u.Connected, GaveUp: u.GaveUp}
		if u.Err != nil && !errors.Is(u.Err, realtime.ErrChannelClosed) {
			ev.Error = u.Err.Error()
		}
		return "status", ev
	}
}

func toBubbleEvent(b chat.Bubble) bubbleEvent {
	return bubbleEvent{
		Sender: string(b.Sender),
		Right:  b.Align == chat.AlignRight,
		Label:  b.Label,
		Body:   b.Body,
		Time:   b.Time,
	}
}

// writeSSE writes a single SSE event to the writer.
func writeSSE(w io.Writer, event string, data any) {
	jsonData, err := json.Marshal(data)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, string(jsonData))
}
