package handler

import (
	"context"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/xxxsen/aichat/internal/knowledge"
	"github.com/xxxsen/aichat/internal/pkg/errcode"
	"github.com/xxxsen/aichat/internal/pkg/response"
)

type knowledgeSearcher interface {
	Search(ctx context.Context, query string, topK int) ([]knowledge.SearchResult, error)
}

type KnowledgeHandler struct {
	kb knowledgeSearcher
}

func NewKnowledgeHandler(kb knowledgeSearcher) *KnowledgeHandler {
	return &KnowledgeHandler{kb: kb}
}

func (h *KnowledgeHandler) Search(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		response.Error(c, errcode.ErrInvalid, "query required")
		return
	}
	topK := 0
	if raw := c.Query("top_k"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 1 {
			response.Error(c, errcode.ErrInvalid, "invalid top_k")
			return
		}
		topK = parsed
	}
	results, err := h.kb.Search(c.Request.Context(), query, topK)
	if err != nil {
		handleError(c, err)
		return
	}
	if results == nil {
		results = []knowledge.SearchResult{}
	}
	response.Success(c, gin.H{"items": results})
}
