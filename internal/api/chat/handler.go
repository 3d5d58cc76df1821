package chat

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/Vasu1712/buddychat/internal/api/respond"
	"github.com/Vasu1712/buddychat/internal/apperrors"
	"github.com/Vasu1712/buddychat/internal/auth"
	"github.com/Vasu1712/buddychat/internal/messaging"
	"github.com/Vasu1712/buddychat/internal/models"
	"github.com/Vasu1712/buddychat/internal/profiles"
	"github.com/Vasu1712/buddychat/internal/ws"
)

const maxBodyBytes = 16 << 10

type ChatHandler struct {
	Coord    *messaging.Coordinator
	Profiles *profiles.Directory
	Hub      *ws.Hub
	Log      *zap.SugaredLogger

	upgrader websocket.Upgrader
}

// NewChatHandler wires a handler and its hub. The caller runs Hub.
func NewChatHandler(coord *messaging.Coordinator, dir *profiles.Directory, allowedOrigin string, log *zap.SugaredLogger) *ChatHandler {
	h := &ChatHandler{Coord: coord, Profiles: dir, Log: log}
	h.Hub = ws.NewHub(h.OpenTopic, log)
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || origin == allowedOrigin
		},
	}
	return h
}

func decode(w http.ResponseWriter, r *http.Request, v any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(v); err != nil {
		return apperrors.InvalidArg("malformed request body")
	}
	return nil
}

func (h *ChatHandler) StartConversation(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req struct {
		CounterpartID    string `json:"counterpartId"`
		CounterpartLabel string `json:"counterpartLabel"`
		InitiatorLabel   string `json:"initiatorLabel"`
	}
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	id, err := h.Coord.StartConversation(r.Context(), userID, req.CounterpartID, req.CounterpartLabel, req.InitiatorLabel)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusCreated, map[string]string{"id": id})
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	msgs, err := h.Coord.Transcript(r.Context(), mux.Vars(r)["id"], userID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string][]models.Message{"messages": msgs})
}

// SendMessage answers 202 once the message is stored; previews catch up
// asynchronously from the client's point of view.
func (h *ChatHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	var req struct {
		Text string `json:"text"`
	}
	if err := decode(w, r, &req); err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.Coord.SendMessage(r.Context(), mux.Vars(r)["id"], userID, req.Text); err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusAccepted, nil)
}

func (h *ChatHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	if err := h.Coord.MarkRead(r.Context(), mux.Vars(r)["id"], userID); err != nil {
		respond.Error(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *ChatHandler) viewerName(r *http.Request, userID string) string {
	name, err := h.Profiles.DisplayName(r.Context(), userID)
	if err != nil {
		h.Log.Warnw("viewer name lookup failed", "user", userID, "error", err)
	}
	return name
}

func (h *ChatHandler) Inbox(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	threads, err := h.Coord.Inbox(r.Context(), userID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	previews := messaging.FormatInbox(threads, h.viewerName(r, userID), nil)
	respond.JSON(w, http.StatusOK, map[string][]messaging.Preview{"threads": previews})
}

func (h *ChatHandler) BuddyCandidates(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	buddies, err := h.Coord.BuddyCandidates(r.Context(), userID)
	if err != nil {
		respond.Error(w, err)
		return
	}
	respond.JSON(w, http.StatusOK, map[string][]models.Profile{"buddies": buddies})
}

// WebSocket handlers

func (h *ChatHandler) ServeInboxWS(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	h.serveTopic(w, r, userID, inboxTopic(userID))
}

func (h *ChatHandler) ServeConversationWS(w http.ResponseWriter, r *http.Request) {
	userID, err := auth.UserID(r.Context())
	if err != nil {
		respond.Error(w, err)
		return
	}
	conversationID := mux.Vars(r)["id"]
	if _, err := h.Coord.Conversation(r.Context(), conversationID, userID); err != nil {
		respond.Error(w, err)
		return
	}
	h.serveTopic(w, r, userID, chatTopic(conversationID))
}

func (h *ChatHandler) serveTopic(w http.ResponseWriter, r *http.Request, userID, topic string) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.Log.Debugw("websocket upgrade failed", "topic", topic, "error", err)
		return
	}
	client := &ws.Client{
		UserID: userID,
		Topic:  topic,
		Send:   make(chan []byte, 16),
		Conn:   conn,
	}
	if !h.Hub.Join(client) {
		conn.Close()
		return
	}
	go client.WritePump()
	go client.ReadPump(h.Hub)
}
