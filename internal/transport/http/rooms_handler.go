package http

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"quizarena/internal/app"
	"quizarena/internal/domain"
)

// RoomsHandler exposes the REST endpoints used before the websocket opens:
// creating a room and previewing one by its join code.
type RoomsHandler struct {
	hub    *app.Hub
	logger zerolog.Logger
}

func NewRoomsHandler(hub *app.Hub, logger zerolog.Logger) *RoomsHandler {
	return &RoomsHandler{hub: hub, logger: logger}
}

type createRoomRequest struct {
	Username     string `json:"username"`
	Topic        string `json:"topic"`
	Difficulty   string `json:"difficulty"`
	NumQuestions int    `json:"num_questions"`
	MaxPlayers   int    `json:"max_players"`
}

type joinRoomRequest struct {
	Code string `json:"code"`
}

// CreateRoom handles POST /api/rooms.
func (h *RoomsHandler) CreateRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req createRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	difficulty := domain.Difficulty(req.Difficulty)
	if difficulty == "" {
		difficulty = domain.DifficultyMedium
	}
	room, err := h.hub.CreateRoom(r.Context(), req.Username, req.Topic, difficulty, req.NumQuestions, req.MaxPlayers)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, room)
}

// JoinRoom handles POST /api/rooms/join: a preview lookup, the actual join
// happens over the websocket.
func (h *RoomsHandler) JoinRoom(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req joinRoomRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Code == "" {
		writeError(w, http.StatusBadRequest, "room code required")
		return
	}
	room, err := h.hub.RoomByCode(r.Context(), req.Code)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, room)
}

func writeDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRoomNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrAuthRequired):
		writeError(w, http.StatusUnauthorized, err.Error())
	case errors.Is(err, domain.ErrRoomFull), errors.Is(err, domain.ErrGameInProgress):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
