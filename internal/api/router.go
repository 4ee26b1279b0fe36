package api

import (
	"github.com/gin-gonic/gin"
	"github.com/sabarim/fyerschain/internal/logger"
	"go.uber.org/zap"
)

// NewRouter wires the routes onto a gin engine
func NewRouter(service ChainService, log *zap.Logger) *gin.Engine {
	log = logger.OrNop(log)
	h := NewHandler(service, log)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(requestLogger(log))

	router.GET("/health", h.Health)

	v1 := router.Group("/api/v1")
	{
		v1.GET("/option-chain", h.OptionChain)
	}

	return router
}
