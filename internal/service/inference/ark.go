package inference

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/z-tavern/relay/internal/config"
)

// ArkBackend serves completions from a Volcengine Ark chat model through
// eino. Its reply mimics Ollama's generate response so clients do not need
// to know which backend answered.
type ArkBackend struct {
	chatModel model.BaseChatModel
	modelName string
	now       func() time.Time
}

// NewArkBackend builds the Ark chat model from cfg.
func NewArkBackend(ctx context.Context, cfg config.AIConfig) (*ArkBackend, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewChatModelBackend(chatModel, cfg.Model), nil
}

// NewChatModelBackend wraps any eino chat model.
func NewChatModelBackend(chatModel model.BaseChatModel, modelName string) *ArkBackend {
	return &ArkBackend{
		chatModel: chatModel,
		modelName: modelName,
		now:       time.Now,
	}
}

type generateReply struct {
	Model     string `json:"model"`
	CreatedAt string `json:"created_at"`
	Response  string `json:"response"`
	Done      bool   `json:"done"`
}

// Generate implements Backend. The flattened prompt already carries the
// system prompt and history, so it is sent as one user message.
func (b *ArkBackend) Generate(ctx context.Context, req GenerateRequest) (json.RawMessage, error) {
	messages := []*schema.Message{schema.UserMessage(req.Prompt)}

	reply, err := b.chatModel.Generate(ctx, messages)
	if err != nil {
		return nil, &UpstreamError{Err: err}
	}
	if reply == nil {
		return nil, &UpstreamError{Err: errors.New("chat model returned no message")}
	}

	name := b.modelName
	if name == "" {
		name = req.Model
	}
	log.Printf("[inference] ark generated response, model=%s, length=%d", name, len(reply.Content))

	body, err := json.Marshal(generateReply{
		Model:     name,
		CreatedAt: b.now().UTC().Format(time.RFC3339Nano),
		Response:  reply.Content,
		Done:      true,
	})
	if err != nil {
		return nil, fmt.Errorf("encode reply: %w", err)
	}
	return body, nil
}
