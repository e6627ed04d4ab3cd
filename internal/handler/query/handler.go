package query

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	chatservice "github.com/zhouzirui/z-tavern/relay/internal/service/chat"
	"github.com/zhouzirui/z-tavern/relay/pkg/utils"
)

// Asker 把一条用户消息发送给远端模型并返回回复
type Asker interface {
	Ask(ctx context.Context, message string) (string, error)
}

// Handler 游戏侧 /query 接口
type Handler struct {
	asker Asker
}

// New 创建query处理器
func New(asker Asker) *Handler {
	return &Handler{asker: asker}
}

// RegisterRoutes 注册query相关的路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/query", h.handleQuery)
}

type queryRequest struct {
	Message string `json:"message"`
}

// queryResponse 中 Response 为 nil 时序列化为 null，游戏端据此判断失败
type queryResponse struct {
	Response *string `json:"response"`
}

// handleQuery 转发玩家消息；远端失败时仍返回200与 null
func (h *Handler) handleQuery(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	// 仅用去除空白后的内容判空，转发与记录的是玩家原文
	if strings.TrimSpace(req.Message) == "" {
		utils.RespondError(w, http.StatusBadRequest, "message is required")
		return
	}

	reply, err := h.asker.Ask(r.Context(), req.Message)
	if err != nil {
		if errors.Is(err, chatservice.ErrEmptyMessage) {
			utils.RespondError(w, http.StatusBadRequest, "message is required")
			return
		}
		log.Printf("[query] relay call failed: %v", err)
		utils.RespondJSON(w, http.StatusOK, queryResponse{})
		return
	}

	utils.RespondJSON(w, http.StatusOK, queryResponse{Response: &reply})
}
