package httpapi

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zento-ai/zento-server/internal/common"
	"github.com/zento-ai/zento-server/internal/config"
	"github.com/zento-ai/zento-server/internal/httpapi/handlers"
	"github.com/zento-ai/zento-server/internal/httpapi/middleware"
	"github.com/zento-ai/zento-server/internal/store/rabbitmq"
	"github.com/zento-ai/zento-server/internal/store/redisstore"
)

func NewRouter(db *gorm.DB, cfg config.Config, log *zap.Logger, sessions *redisstore.Store, rabbit *rabbitmq.Publisher) (*gin.Engine, error) {
	r := gin.New()
	r.HandleMethodNotAllowed = true
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery(log))

	r.NoRoute(func(c *gin.Context) {
		common.Fail(c, http.StatusNotFound, 40400, "route not found")
	})
	r.NoMethod(func(c *gin.Context) {
		common.Fail(c, http.StatusMethodNotAllowed, 40500, "method not allowed")
	})

	h, err := handlers.NewHandler(db, cfg, log, sessions, rabbit)
	if err != nil {
		return nil, err
	}

	r.GET("/ping", h.Ping)

	// auth
	r.POST("/register", h.Register)
	r.POST("/login", h.Login)

	authGroup := r.Group("/")
	authGroup.Use(middleware.AuthRequired(cfg.JWTSecret, sessions, log))

	authGroup.GET("/me", h.Me)
	authGroup.POST("/logout", h.Logout)

	// profiles (admin surface except self-update)
	authGroup.GET("/profiles", h.ListProfiles)
	authGroup.GET("/profiles/:id", h.GetProfileByID)
	authGroup.PATCH("/profiles/:id", h.UpdateProfile)

	// chats
	authGroup.POST("/chats", h.CreateChat)
	authGroup.GET("/chats", h.ListChats)
	authGroup.PATCH("/chats/:chat_id", h.RenameChat)
	authGroup.DELETE("/chats/:chat_id", h.DeleteChat)
	authGroup.GET("/chats/:chat_id/messages", h.ListMessages)
	authGroup.DELETE("/chats/:chat_id/messages/:message_id", h.DeleteMessage)

	// streaming exchanges
	authGroup.POST("/chat/messages/stream", h.SendMessageStream)
	authGroup.POST("/chats/:chat_id/regenerate", h.Regenerate)
	authGroup.POST("/chats/:chat_id/cancel", h.CancelStream)

	// async exchanges
	authGroup.POST("/chat/messages/async", h.SendMessageAsync)
	authGroup.GET("/chat/jobs/:job_id", h.GetJob)

	// files
	authGroup.POST("/files", h.UploadFile)
	authGroup.GET("/files", h.ListFiles)
	authGroup.GET("/files/:file_id", h.DownloadFile)
	authGroup.DELETE("/files/:file_id", h.DeleteFile)

	return r, nil
}
