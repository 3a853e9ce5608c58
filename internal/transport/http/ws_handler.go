package http

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/GRACE-wDEV/Stemforces-sub001/internal/app"
	"github.com/GRACE-wDEV/Stemforces-sub001/internal/domain"
)

type WSHandler struct {
	service  *app.BattleService
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

func NewWSHandler(service *app.BattleService, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &WSHandler{
		service: service,
		logger:  logger,
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

type startPayload struct {
	Subject         string                `json:"subject"`
	Difficulty      string                `json:"difficulty"`
	RoundCount      int                   `json:"roundCount"`
	PerRoundSeconds int                   `json:"perRoundSeconds"`
	Bots            []domain.SkillProfile `json:"bots"`
	BotCount        int                   `json:"botCount"`
	BotDifficulty   string                `json:"botDifficulty"`
}

type answerPayload struct {
	OptionIndex *int `json:"optionIndex"`
}

type powerUpPayload struct {
	Kind string `json:"kind"`
}

type outboundMessage struct {
	Type    string `json:"type"`
	Payload any    `json:"payload"`
}

type errorPayload struct {
	Message string `json:"message"`
}

// ServeWS upgrades HTTP requests to websockets and lets one user play battles
// over the connection, one at a time.
func (h *WSHandler) ServeWS(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	displayName := r.URL.Query().Get("name")
	if userID == "" {
		http.Error(w, "missing userId", http.StatusBadRequest)
		return
	}
	if displayName == "" {
		displayName = userID
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("ws: upgrade failed", "error", err)
		return
	}
	defer conn.Close()

	p := &player{
		h:       h,
		userID:  userID,
		name:    displayName,
		send:    make(chan outboundMessage, 16),
		closing: make(chan struct{}),
	}

	writerDone := make(chan struct{})
	go func() {
		defer close(writerDone)
		failed := false
		for msg := range p.send {
			// keep draining after a failure so emitters never block
			if failed {
				continue
			}
			if err := conn.WriteJSON(msg); err != nil {
				h.logger.Debug("ws: write failed", "user_id", userID, "error", err)
				failed = true
			}
		}
	}()

	ctx := r.Context()
	for {
		var inbound inboundMessage
		if err := conn.ReadJSON(&inbound); err != nil {
			break
		}
		p.handle(ctx, inbound)
	}

	p.detach(ctx)
	close(p.closing)
	close(p.send)
	<-writerDone
}

// player is the per-connection state. Only the read loop touches battleID;
// the forwarder goroutine owns nothing but its subscription.
type player struct {
	h      *WSHandler
	userID string
	name   string

	send    chan outboundMessage
	closing chan struct{}

	battleID    string
	unsubscribe func()
	forwarding  chan struct{}
}

func (p *player) handle(ctx context.Context, in inboundMessage) {
	switch in.Type {
	case "start":
		var payload startPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			p.emit("error", errorPayload{Message: "invalid start payload"})
			return
		}
		p.start(ctx, payload)
	case "answer":
		var payload answerPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil || payload.OptionIndex == nil {
			p.emit("error", errorPayload{Message: "invalid answer payload"})
			return
		}
		if !p.active() {
			return
		}
		if _, err := p.h.service.SubmitAnswer(ctx, p.battleID, *payload.OptionIndex); err != nil {
			p.fail(err)
		}
	case "powerUp":
		var payload powerUpPayload
		if err := json.Unmarshal(in.Payload, &payload); err != nil {
			p.emit("error", errorPayload{Message: "invalid powerUp payload"})
			return
		}
		kind, err := domain.ParsePowerUpKind(payload.Kind)
		if err != nil {
			p.fail(err)
			return
		}
		if !p.active() {
			return
		}
		if _, err := p.h.service.UsePowerUp(ctx, p.battleID, kind); err != nil {
			p.fail(err)
		}
	case "leave":
		p.detach(ctx)
	default:
		p.emit("error", errorPayload{Message: "unsupported message type"})
	}
}

func (p *player) start(ctx context.Context, payload startPayload) {
	// a new battle replaces the current one
	p.detach(ctx)

	snap, err := p.h.service.Start(ctx, app.StartRequest{
		UserID:          p.userID,
		DisplayName:     p.name,
		Subject:         payload.Subject,
		Difficulty:      payload.Difficulty,
		RoundCount:      payload.RoundCount,
		PerRoundSeconds: payload.PerRoundSeconds,
		BotProfiles:     payload.Bots,
		BotCount:        payload.BotCount,
		BotDifficulty:   payload.BotDifficulty,
	})
	if err != nil {
		p.fail(err)
		return
	}

	updates, cancel, err := p.h.service.Subscribe(ctx, snap.BattleID)
	if err != nil {
		p.h.service.Leave(ctx, snap.BattleID)
		p.fail(err)
		return
	}
	p.battleID = snap.BattleID
	p.unsubscribe = cancel
	p.forwarding = make(chan struct{})
	go p.forward(snap.BattleID, updates, p.forwarding)
}

// forward relays snapshots until the subscription closes and sends the result
// once the battle completes.
func (p *player) forward(battleID string, updates <-chan domain.Snapshot, done chan struct{}) {
	defer close(done)
	sentResult := false
	for snap := range updates {
		if !p.emit("snapshot", snap) {
			return
		}
		if snap.Stage != domain.StageSessionComplete || sentResult {
			continue
		}
		res, err := p.h.service.Result(context.Background(), battleID)
		if err != nil {
			p.h.logger.Warn("ws: load result", "battle_id", battleID, "error", err)
			continue
		}
		sentResult = true
		if !p.emit("result", res) {
			return
		}
	}
}

// detach leaves the current battle, if any, and waits for its forwarder.
func (p *player) detach(ctx context.Context) {
	if p.battleID == "" {
		return
	}
	p.h.service.Leave(ctx, p.battleID)
	p.unsubscribe()
	<-p.forwarding
	p.battleID, p.unsubscribe, p.forwarding = "", nil, nil
}

func (p *player) active() bool {
	if p.battleID == "" {
		p.emit("rejected", errorPayload{Message: "no battle in progress"})
		return false
	}
	return true
}

func (p *player) fail(err error) {
	if domain.IsRejection(err) || errors.Is(err, domain.ErrBattleNotFound) {
		p.emit("rejected", errorPayload{Message: err.Error()})
		return
	}
	p.h.logger.Error("ws: battle action failed", "user_id", p.userID, "battle_id", p.battleID, "error", err)
	p.emit("error", errorPayload{Message: err.Error()})
}

func (p *player) emit(typ string, payload any) bool {
	select {
	case p.send <- outboundMessage{Type: typ, Payload: payload}:
		return true
	case <-p.closing:
		return false
	}
}
