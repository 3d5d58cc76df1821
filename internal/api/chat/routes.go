package chat

import (
	"net/http"

	"github.com/gorilla/mux"
)

// RegisterChatRoutes registers the messaging HTTP and WebSocket routes.
// requireUser authenticates every route; limitSends throttles message
// sends only.
func RegisterChatRoutes(r *mux.Router, handler *ChatHandler, requireUser, limitSends mux.MiddlewareFunc) {
	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(requireUser)
	api.HandleFunc("/conversations", handler.StartConversation).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/messages", handler.GetMessages).Methods(http.MethodGet)
	api.Handle("/conversations/{id}/messages", limitSends(http.HandlerFunc(handler.SendMessage))).Methods(http.MethodPost)
	api.HandleFunc("/conversations/{id}/read", handler.MarkRead).Methods(http.MethodPost)
	api.HandleFunc("/inbox", handler.Inbox).Methods(http.MethodGet)
	api.HandleFunc("/buddies/candidates", handler.BuddyCandidates).Methods(http.MethodGet)

	sockets := r.PathPrefix("/ws").Subrouter()
	sockets.Use(requireUser)
	sockets.HandleFunc("/inbox", handler.ServeInboxWS).Methods(http.MethodGet)
	sockets.HandleFunc("/conversations/{id}", handler.ServeConversationWS).Methods(http.MethodGet)
}
