package status

import (
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	"github.com/zhouzirui/z-tavern/relay/internal/middleware"
	"github.com/zhouzirui/z-tavern/relay/internal/model/chat"
	statusservice "github.com/zhouzirui/z-tavern/relay/internal/service/status"
	"github.com/zhouzirui/z-tavern/relay/pkg/utils"
)

const (
	writeWait  = 5 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// TranscriptSource 提供当前会话的只读快照
type TranscriptSource interface {
	Snapshot() chat.Session
}

// Handler 状态与会话记录的只读接口
type Handler struct {
	tracker    *statusservice.Tracker
	transcript TranscriptSource
	upgrader   websocket.Upgrader
}

// New 创建status处理器，websocket 握手沿用 CORS_ALLOWED_ORIGINS 的来源规则
func New(tracker *statusservice.Tracker, transcript TranscriptSource, allowedOrigins []string) *Handler {
	return &Handler{
		tracker:    tracker,
		transcript: transcript,
		upgrader: websocket.Upgrader{
			CheckOrigin:     middleware.NewOriginPolicy(allowedOrigins).CheckOrigin,
			ReadBufferSize:  512,
			WriteBufferSize: 1024,
		},
	}
}

// RegisterRoutes 注册状态相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/status", h.handleStatus)
	r.Get("/status/ws", h.handleStatusWS)
	r.Get("/transcript", h.handleTranscript)
}

// handleStatus 返回模型是否正在生成以及上次结束时间
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.tracker.Snapshot())
}

// handleTranscript 返回当前会话（系统提示词与历史）
func (h *Handler) handleTranscript(w http.ResponseWriter, r *http.Request) {
	utils.RespondJSON(w, http.StatusOK, h.transcript.Snapshot())
}

// handleStatusWS 推送状态变化，替代游戏端每0.5秒的轮询
func (h *Handler) handleStatusWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("[status] websocket upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, unsubscribe := h.tracker.Subscribe()
	defer unsubscribe()

	closed := make(chan struct{})
	go readUntilClosed(conn, closed)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	if err := writeStatus(conn, h.tracker.Snapshot()); err != nil {
		return
	}

	for {
		select {
		case <-closed:
			return
		case <-r.Context().Done():
			return
		case st, ok := <-updates:
			if !ok {
				return
			}
			if err := writeStatus(conn, st); err != nil {
				log.Printf("[status] websocket write failed: %v", err)
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeStatus(conn *websocket.Conn, st any) error {
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(st)
}

// readUntilClosed drains client frames so control messages are handled and
// signals once the peer goes away.
func readUntilClosed(conn *websocket.Conn, closed chan<- struct{}) {
	defer close(closed)
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}
