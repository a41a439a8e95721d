package handler

import (
	"github.com/gin-gonic/gin"
)

type RouterDeps struct {
	Chat      *ChatHandler
	Knowledge *KnowledgeHandler
}

func RegisterRoutes(api *gin.RouterGroup, deps RouterDeps) {
	api.POST("/chat", deps.Chat.Chat)
	if deps.Knowledge != nil {
		api.GET("/knowledge/search", deps.Knowledge.Search)
	}
}
