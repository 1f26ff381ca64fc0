package files

import "time"

type Record struct {
	ID        string    `gorm:"primaryKey;size:26" json:"id"`
	UserID    string    `gorm:"size:26;index;not null" json:"user_id"`
	MessageID *string   `gorm:"size:26;index" json:"message_id"`
	FilePath  string    `gorm:"type:varchar(512);not null" json:"file_path"`
	FileType  string    `gorm:"type:varchar(128)" json:"file_type"`
	FileSize  int64     `json:"file_size"`
	CreatedAt time.Time `json:"created_at"`
}

func (Record) TableName() string { return "files" }
