package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/chatlane/messaging-ingestion-service/internal/service"
)

// Server exposes the provider webhook, health and metrics endpoints. The
// webhook is the only ingestion entry point.
type Server struct {
	pipeline    *service.Pipeline
	verifyToken string
}

func New(pipeline *service.Pipeline, verifyToken string) *Server {
	return &Server{pipeline: pipeline, verifyToken: verifyToken}
}

// Router builds the gin engine.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", func(c *gin.Context) {
		c.String(http.StatusOK, "OK")
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	webhooks := router.Group("/webhooks")
	webhooks.GET("/whatsapp", s.verifyWebhook)
	webhooks.POST("/whatsapp", s.receiveWebhook)

	return router
}

// verifyWebhook answers the provider's subscription handshake by echoing
// the challenge when the verify token matches.
func (s *Server) verifyWebhook(c *gin.Context) {
	mode := c.Query("hub.mode")
	token := c.Query("hub.verify_token")

	if mode == "subscribe" && token == s.verifyToken {
		log.Info().Msg("WhatsApp webhook verified")
		c.String(http.StatusOK, c.Query("hub.challenge"))
		return
	}
	c.String(http.StatusForbidden, "Verification failed")
}

// receiveWebhook acknowledges every parseable payload with success, even
// when individual messages inside it failed: telling the provider to retry
// the whole payload would replay side effects of the messages that did
// apply.
func (s *Server) receiveWebhook(c *gin.Context) {
	var payload service.WebhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid payload"})
		return
	}

	s.pipeline.Process(c.Request.Context(), &payload)
	c.JSON(http.StatusOK, gin.H{"status": "success"})
}
