package http

import (
	"net/http"

	"github.com/rs/zerolog"

	"quizarena/internal/app"
)

// NewRouter assembles the service's HTTP surface.
func NewRouter(hub *app.Hub, logger zerolog.Logger) *http.ServeMux {
	ws := NewWSHandler(hub, logger)
	rooms := NewRoomsHandler(hub, logger)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/api/rooms", rooms.CreateRoom)
	mux.HandleFunc("/api/rooms/join", rooms.JoinRoom)
	mux.HandleFunc("/ws", ws.ServeQuizWS)
	mux.HandleFunc("/battle", ws.ServeBattleWS)
	return mux
}
