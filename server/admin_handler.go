package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"Bt1QLink/config"
	"Bt1QLink/core/auth"
	"Bt1QLink/core/link"
	"Bt1QLink/logger"

	"github.com/gorilla/mux"
)

// APIHandler 处理管理接口的全部请求
type APIHandler struct {
	cfg *config.Config
	mgr *link.Manager
}

// NewAPIHandler 创建管理接口处理器
func NewAPIHandler(cfg *config.Config, mgr *link.Manager) *APIHandler {
	return &APIHandler{cfg: cfg, mgr: mgr}
}

// nodeView 节点状态的对外表示
type nodeView struct {
	ID             string  `json:"id"`
	State          string  `json:"state"`
	SessionID      string  `json:"sessionId,omitempty"`
	Players        int     `json:"players"`
	PlayingPlayers int     `json:"playingPlayers"`
	Load           float64 `json:"load"`
	UptimeMs       int64   `json:"uptimeMs"`
}

// playerView 玩家状态的对外表示
type playerView struct {
	GuildID        string `json:"guildId"`
	NodeID         string `json:"nodeId,omitempty"`
	State          string `json:"state"`
	VoiceChannelID string `json:"voiceChannelId,omitempty"`
	Playing        bool   `json:"playing"`
	Paused         bool   `json:"paused"`
	Volume         int    `json:"volume"`
	RepeatMode     string `json:"repeatMode"`
	PositionMs     int64  `json:"positionMs"`
	CurrentTitle   string `json:"currentTitle,omitempty"`
	QueueSize      int    `json:"queueSize"`
}

func newNodeView(n *link.Node) nodeView {
	stats := n.Stats()
	return nodeView{
		ID:             n.ID(),
		State:          string(n.State()),
		SessionID:      n.SessionID(),
		Players:        stats.Players,
		PlayingPlayers: stats.PlayingPlayers,
		Load:           stats.Load(),
		UptimeMs:       stats.Uptime,
	}
}

func newPlayerView(p *link.Player) playerView {
	view := playerView{
		GuildID:        p.GuildID(),
		State:          string(p.State()),
		VoiceChannelID: p.VoiceChannelID(),
		Playing:        p.Playing(),
		Paused:         p.Paused(),
		Volume:         p.Volume(),
		RepeatMode:     string(p.RepeatMode()),
		PositionMs:     p.Position(),
		QueueSize:      p.Queue().Size(),
	}
	if n := p.Node(); n != nil {
		view.NodeID = n.ID()
	}
	if cur := p.Queue().Current(); cur != nil {
		view.CurrentTitle = cur.Title()
	}
	return view
}

// LoginHandler 校验管理密码并签发 token
func (h *APIHandler) LoginHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.Password == "" {
		http.Error(w, "Password is required", http.StatusBadRequest)
		return
	}

	if !auth.VerifyPassword(req.Password, h.cfg.AdminPasswordHash) {
		logger.Warn("[Login] 管理密码校验失败")
		http.Error(w, "Invalid password", http.StatusUnauthorized)
		return
	}

	token, err := auth.GenerateToken(h.cfg.JWTSecret, "admin")
	if err != nil {
		logger.Error("[Login] 生成Token失败", logger.ErrorField(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// GetNodesHandler 返回全部节点状态
func (h *APIHandler) GetNodesHandler(w http.ResponseWriter, r *http.Request) {
	nodes := h.mgr.Nodes()
	views := make([]nodeView, 0, len(nodes))
	for _, n := range nodes {
		views = append(views, newNodeView(n))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetPlayersHandler 返回全部玩家状态
func (h *APIHandler) GetPlayersHandler(w http.ResponseWriter, r *http.Request) {
	players := h.mgr.Players()
	views := make([]playerView, 0, len(players))
	for _, p := range players {
		views = append(views, newPlayerView(p))
	}
	writeJSON(w, http.StatusOK, views)
}

// GetPlayerHandler 返回指定公会的玩家状态
func (h *APIHandler) GetPlayerHandler(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild_id"]
	p := h.mgr.Player(guildID)
	if p == nil {
		http.Error(w, "Player not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, newPlayerView(p))
}

// MovePlayerHandler 把玩家迁移到指定节点,不指定时按负载选择
func (h *APIHandler) MovePlayerHandler(w http.ResponseWriter, r *http.Request) {
	guildID := mux.Vars(r)["guild_id"]
	p := h.mgr.Player(guildID)
	if p == nil {
		http.Error(w, "Player not found", http.StatusNotFound)
		return
	}

	var req struct {
		NodeID string `json:"nodeId"`
	}
	if r.Body != nil && r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	}

	if err := p.MoveNode(r.Context(), req.NodeID); err != nil {
		logger.Error("[Move] 玩家迁移失败",
			logger.String("guild", guildID),
			logger.ErrorField(err))
		http.Error(w, "Failed to move player: "+err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, http.StatusOK, newPlayerView(p))
}

// AuthMiddleware 校验 Bearer token
func (h *APIHandler) AuthMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header is required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
			return
		}

		subject, err := auth.ParseToken(h.cfg.JWTSecret, parts[1])
		if err != nil {
			http.Error(w, "Invalid token", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), subjectContextKey, subject)
		next.ServeHTTP(w, r.WithContext(ctx))
	}
}

type contextKey string

const subjectContextKey contextKey = "subject"

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Error("failed to encode response", logger.ErrorField(err))
	}
}
