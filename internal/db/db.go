package db

import (
	"gorm.io/driver/mysql"
	"gorm.io/gorm"

	"github.com/zento-ai/zento-server/internal/chat"
	"github.com/zento-ai/zento-server/internal/files"
	"github.com/zento-ai/zento-server/internal/models"
)

func Connect(dsn string) (*gorm.DB, error) {
	gdb, err := gorm.Open(mysql.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	if err := Migrate(gdb); err != nil {
		return nil, err
	}
	return gdb, nil
}

func Migrate(gdb *gorm.DB) error {
	return gdb.AutoMigrate(
		&models.Profile{},
		&chat.Chat{},
		&chat.Message{},
		&chat.Job{},
		&files.Record{},
	)
}
