package http

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"quizarena/internal/app"
)

// WSHandler upgrades websocket connections and bridges them to the hub: one
// reader loop per connection feeding the hub, one writer goroutine draining
// the connection's event stream. The writer is the only goroutine that
// touches the socket for writes.
type WSHandler struct {
	hub      *app.Hub
	upgrader websocket.Upgrader
	logger   zerolog.Logger
}

func NewWSHandler(hub *app.Hub, logger zerolog.Logger) *WSHandler {
	return &WSHandler{
		hub:    hub,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

type inboundMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

type outboundMessage struct {
	Type    string    `json:"type"`
	Payload app.Event `json:"payload"`
}

// ServeQuizWS handles GET /ws?room=CODE&user=NAME: joins the quiz room and
// speaks the message protocol until the socket closes.
func (h *WSHandler) ServeQuizWS(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("room")
	user := r.URL.Query().Get("user")
	if code == "" {
		http.Error(w, "missing room code", http.StatusBadRequest)
		return
	}
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer ws.Close()

	conn := app.NewConn(user)
	if err := h.hub.JoinRoom(r.Context(), code, conn); err != nil {
		_ = ws.WriteJSON(outboundMessage{Type: "error", Payload: app.ErrorEvent{Message: err.Error()}})
		return
	}
	h.serve(ws, conn)
}

// ServeBattleWS handles GET /battle?user=NAME: the connection starts in the
// lobby and moves into a battle via create/join messages.
func (h *WSHandler) ServeBattleWS(w http.ResponseWriter, r *http.Request) {
	user := r.URL.Query().Get("user")
	ws, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn().Err(err).Msg("ws upgrade failed")
		return
	}
	defer ws.Close()

	conn := app.NewConn(user)
	h.hub.JoinLobby(conn)
	h.serve(ws, conn)
}

func (h *WSHandler) serve(ws *websocket.Conn, conn *app.Conn) {
	defer h.hub.Leave(conn)

	done := make(chan struct{})
	defer close(done)
	go func() {
		for {
			select {
			case event := <-conn.Events():
				if err := ws.WriteJSON(outboundMessage{Type: event.EventType(), Payload: event}); err != nil {
					h.logger.Debug().Err(err).Msg("ws write failed")
					return
				}
			case <-done:
				return
			}
		}
	}()

	for {
		var in inboundMessage
		if err := ws.ReadJSON(&in); err != nil {
			return
		}
		msg, err := parseInbound(in)
		if err != nil {
			conn.Push(app.ErrorEvent{Message: err.Error()})
			continue
		}
		h.hub.Dispatch(context.Background(), conn, msg)
	}
}

type submitAnswerPayload struct {
	QuestionIndex int    `json:"question_index"`
	Answer        string `json:"answer"`
}

type createBattlePayload struct {
	NumQuestions int    `json:"num_questions"`
	Level        string `json:"level"`
}

type joinBattlePayload struct {
	ChallengeID string `json:"challenge_id"`
}

type joinBattleByCodePayload struct {
	BattleCode string `json:"battle_code"`
}

type setReadyPayload struct {
	Ready bool `json:"ready"`
}

type codePayload struct {
	Code      string `json:"code"`
	Language  string `json:"language"`
	IsTimeout bool   `json:"is_timeout"`
}

// parseInbound maps the wire envelope onto one inbound variant. Unknown
// types and malformed payloads fail without closing the connection.
func parseInbound(in inboundMessage) (app.Inbound, error) {
	if len(in.Payload) == 0 {
		in.Payload = json.RawMessage("{}")
	}
	switch in.Type {
	case "toggle_ready":
		return app.ToggleReady{}, nil
	case "start_game":
		return app.StartGame{}, nil
	case "leave_room":
		return app.LeaveRoom{}, nil
	case "submit_answer":
		var p submitAnswerPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid submit_answer payload")
		}
		return app.SubmitAnswer{QuestionIndex: p.QuestionIndex, Answer: p.Answer}, nil
	case "time_up":
		return app.TimeUp{}, nil
	case "create_battle":
		var p createBattlePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid create_battle payload")
		}
		return app.CreateBattle{NumQuestions: p.NumQuestions, Level: p.Level}, nil
	case "join_battle":
		var p joinBattlePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid join_battle payload")
		}
		return app.JoinBattle{ChallengeID: p.ChallengeID}, nil
	case "join_battle_by_code":
		var p joinBattleByCodePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid join_battle_by_code payload")
		}
		return app.JoinBattleByCode{BattleCode: p.BattleCode}, nil
	case "load_challenge":
		var p joinBattlePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid load_challenge payload")
		}
		return app.LoadChallenge{ChallengeID: p.ChallengeID}, nil
	case "set_ready":
		var p setReadyPayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid set_ready payload")
		}
		return app.SetReady{Ready: p.Ready}, nil
	case "leave_battle":
		return app.LeaveBattle{}, nil
	case "start_battle":
		return app.StartBattle{}, nil
	case "end_battle":
		return app.EndBattle{}, nil
	case "run_code":
		var p codePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid run_code payload")
		}
		return app.RunCode{Code: p.Code, Language: p.Language}, nil
	case "submit_code":
		var p codePayload
		if err := json.Unmarshal(in.Payload, &p); err != nil {
			return nil, fmt.Errorf("invalid submit_code payload")
		}
		return app.SubmitCode{Code: p.Code, Language: p.Language, IsTimeout: p.IsTimeout}, nil
	case "typing":
		return app.Typing{}, nil
	case "stop_typing":
		return app.StopTyping{}, nil
	case "tab_switch_warning":
		return app.TabSwitchWarning{}, nil
	default:
		return nil, fmt.Errorf("unsupported message type %q", in.Type)
	}
}
