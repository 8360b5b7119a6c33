package httpapi

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/frontdesk/backend/internal/agent"
	"github.com/frontdesk/backend/internal/calls"
	"github.com/frontdesk/backend/internal/config"
	"github.com/frontdesk/backend/internal/db"
	"github.com/frontdesk/backend/internal/http/handlers"
	"github.com/frontdesk/backend/internal/http/middleware"
	"github.com/frontdesk/backend/internal/notify"

	_ "github.com/frontdesk/backend/docs"
)

func Router(cfg config.Config, store *db.Store, ag *agent.Agent, registry *calls.Registry, hub *notify.Hub, logger zerolog.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", "X-Supervisor-Key", "X-Request-Id"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = []string{cfg.CORSAllowed}
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store: store,
		Agent: ag,
		Calls: registry,
		Hub:   hub,
		Upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
		Validator: validator.New(),
		Logger:    logger,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/ws", h.WS)

	api := r.Group("/api")
	{
		api.POST("/calls/simulate", h.SimulateCall)
		api.GET("/calls/active", h.ActiveCalls)
		api.GET("/calls/logs", h.CallLogs)
		api.POST("/requests", h.CreateRequest)
		api.GET("/requests/pending", h.PendingRequests)
		api.GET("/requests", h.AllRequests)
		api.GET("/requests/:id", h.GetRequest)
		api.GET("/knowledge", h.ListKnowledge)
		api.GET("/knowledge/search", h.SearchKnowledge)
		api.GET("/stats", h.Stats)
	}

	supervisor := api.Group("")
	supervisor.Use(middleware.SupervisorKey(cfg.AdminKey))
	{
		supervisor.POST("/requests/:id/respond", h.RespondRequest)
		supervisor.POST("/knowledge", h.AddKnowledge)
		supervisor.PUT("/knowledge/:id", h.UpdateKnowledge)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
