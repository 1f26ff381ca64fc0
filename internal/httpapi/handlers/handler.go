package handlers

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/zento-ai/zento-server/internal/chat"
	"github.com/zento-ai/zento-server/internal/config"
	"github.com/zento-ai/zento-server/internal/files"
	"github.com/zento-ai/zento-server/internal/gemini"
	"github.com/zento-ai/zento-server/internal/store/rabbitmq"
	"github.com/zento-ai/zento-server/internal/store/redisstore"
)

type Handler struct {
	DB       *gorm.DB
	Cfg      config.Config
	Log      *zap.Logger
	Sessions *redisstore.Store
	Rabbit   *rabbitmq.Publisher

	ChatSvc  *chat.Service
	FileRepo *files.Repo
	Storage  *files.Storage
}

func NewHandler(db *gorm.DB, cfg config.Config, log *zap.Logger, sessions *redisstore.Store, rabbit *rabbitmq.Publisher) (*Handler, error) {
	model := gemini.NewClient(cfg.GeminiBaseURL, cfg.GeminiAppID, cfg.GeminiModel, log)
	chatSvc := chat.NewService(chat.NewRepo(db), model, log)

	storage, err := files.NewStorage(cfg.FileStorageDir)
	if err != nil {
		return nil, err
	}

	return &Handler{
		DB:       db,
		Cfg:      cfg,
		Log:      log,
		Sessions: sessions,
		Rabbit:   rabbit,
		ChatSvc:  chatSvc,
		FileRepo: files.NewRepo(db),
		Storage:  storage,
	}, nil
}
