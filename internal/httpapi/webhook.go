package httpapi

import (
	"encoding/json"
	"net/http"

	"go.uber.org/zap"

	"github.com/abda11atar3k/leblebbot/internal/status"
)

// webhookEnvelope is the gateway's webhook POST body. Only the fields the
// daemon reacts to are decoded.
type webhookEnvelope struct {
	Event    string          `json:"event"`
	Instance string          `json:"instance"`
	Data     json.RawMessage `json:"data"`
}

type upsertData struct {
	Key struct {
		RemoteJID string `json:"remoteJid"`
	} `json:"key"`
}

type connectionData struct {
	State string `json:"state"`
}

// HandleWebhook serves POST /webhook/evolution. Message upserts invalidate
// the affected chat's cached pages; connection updates drive the status
// machine. Unknown events are acknowledged and ignored.
func (h *Handler) HandleWebhook(w http.ResponseWriter, r *http.Request) {
	var env webhookEnvelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		writeError(w, http.StatusBadRequest, "malformed webhook body")
		return
	}

	switch env.Event {
	case "messages.upsert":
		var data upsertData
		if err := json.Unmarshal(env.Data, &data); err != nil || data.Key.RemoteJID == "" {
			break
		}
		removed := h.caches.InvalidateChat(data.Key.RemoteJID)
		h.publish("webhook.messages_upsert", data.Key.RemoteJID)
		h.logger.Debug("webhook message upsert",
			zap.String("chat", data.Key.RemoteJID),
			zap.Int("pages_invalidated", removed))

	case "connection.update":
		var data connectionData
		if err := json.Unmarshal(env.Data, &data); err != nil {
			break
		}
		next, ok := status.FromGatewayState(data.State)
		if !ok {
			h.logger.Debug("webhook unknown connection state", zap.String("state", data.State))
			break
		}
		if err := h.machine.Transition(next); err != nil {
			h.logger.Warn("webhook connection update rejected",
				zap.String("state", data.State),
				zap.Error(err))
		}

	default:
		h.logger.Debug("webhook event ignored", zap.String("event", env.Event))
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
