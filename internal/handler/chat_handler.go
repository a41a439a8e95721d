package handler

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/aichat/internal/model"
	"github.com/xxxsen/aichat/internal/pkg/errcode"
	"github.com/xxxsen/aichat/internal/pkg/response"
	"github.com/xxxsen/aichat/internal/uistream"
)

type chatService interface {
	HandleChat(ctx context.Context, msgs []model.Message, em uistream.Emitter) error
}

type ChatHandler struct {
	chat chatService
}

func NewChatHandler(chat chatService) *ChatHandler {
	return &ChatHandler{chat: chat}
}

type chatRequest struct {
	Messages []model.Message `json:"messages"`
}

// Chat streams one response turn as server-sent events. Once the stream has
// started errors are logged only, the envelope itself reports failures
// in-band.
func (h *ChatHandler) Chat(c *gin.Context) {
	var req chatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, errcode.ErrInvalid, "invalid request")
		return
	}
	if len(req.Messages) == 0 {
		response.Error(c, errcode.ErrInvalid, "messages required")
		return
	}
	em := uistream.NewSSEEmitter(c.Writer)
	if err := h.chat.HandleChat(c.Request.Context(), req.Messages, em); err != nil {
		logutil.GetLogger(c.Request.Context()).Error("chat stream aborted",
			zap.String("path", c.Request.URL.Path),
			zap.Error(err))
	}
}
