package ask

import (
	"errors"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/z-tavern/relay/internal/model/relay"
	"github.com/zhouzirui/z-tavern/relay/internal/service/inference"
	relayservice "github.com/zhouzirui/z-tavern/relay/internal/service/relay"
	"github.com/zhouzirui/z-tavern/relay/pkg/utils"
)

// maxBodyBytes 限制 /ask 请求体大小，完整会话历史远小于该值
const maxBodyBytes = 4 << 20

// Handler 推理机一侧的 /ask 接口
type Handler struct {
	server *relayservice.Server
}

// New 创建ask处理器
func New(server *relayservice.Server) *Handler {
	return &Handler{server: server}
}

// RegisterRoutes 注册ask路由
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/ask", h.handleAsk)
}

// handleAsk 校验签名后把提示词交给推理后端，并原样返回模型的JSON
func (h *Handler) handleAsk(w http.ResponseWriter, r *http.Request) {
	timestamp := r.Header.Get(relay.HeaderTimestamp)
	signature := r.Header.Get(relay.HeaderSignature)
	if timestamp == "" || signature == "" {
		h.respondHandleError(w, r, relayservice.ErrAuthRequired)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	var payload relay.RequestPayload
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	reply, err := h.server.Handle(r.Context(), payload, timestamp, signature)
	if err != nil {
		h.respondHandleError(w, r, err)
		return
	}

	utils.RespondRaw(w, http.StatusOK, reply)
}

func (h *Handler) respondHandleError(w http.ResponseWriter, r *http.Request, err error) {
	requestID := r.Header.Get(relay.HeaderRequestID)

	var upstreamErr *inference.UpstreamError
	switch {
	case errors.Is(err, relayservice.ErrAuthRequired):
		log.Printf("[ask] rejected request_id=%s remote=%s: missing auth headers", requestID, r.RemoteAddr)
		utils.RespondError(w, http.StatusUnauthorized, "authentication required")
	case errors.Is(err, relayservice.ErrInvalidSignature):
		log.Printf("[ask] rejected request_id=%s remote=%s: %v", requestID, r.RemoteAddr, err)
		utils.RespondError(w, http.StatusForbidden, "invalid signature or expired timestamp")
	case errors.Is(err, relayservice.ErrEmptyPrompt):
		utils.RespondError(w, http.StatusBadRequest, "prompt is required")
	case errors.As(err, &upstreamErr):
		log.Printf("[ask] inference failed request_id=%s: %v", requestID, err)
		utils.RespondError(w, http.StatusBadGateway, "upstream inference failed")
	default:
		log.Printf("[ask] unexpected error request_id=%s: %v", requestID, err)
		utils.RespondError(w, http.StatusInternalServerError, "internal error")
	}
}
