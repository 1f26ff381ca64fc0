package chat

import "time"

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

const DefaultTitle = "New Chat"

type Chat struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"-"`
	ChatID    string    `gorm:"type:varchar(26);uniqueIndex;not null" json:"id"`
	UserID    string    `gorm:"type:varchar(26);index;not null" json:"user_id"`
	Title     string    `gorm:"type:varchar(255);not null" json:"title"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Chat) TableName() string { return "chats" }

// Message is immutable once persisted, except for deletion. An assistant
// message is only written after its stream completed; partial text never
// reaches storage.
type Message struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement" json:"id"`
	ChatID    string    `gorm:"type:varchar(26);not null;index:idx_chat_msg_chat_id" json:"chat_id"`
	UserID    string    `gorm:"type:varchar(26);index;not null" json:"-"`
	Role      string    `gorm:"type:varchar(16);not null" json:"role"`
	Content   string    `gorm:"type:text;not null" json:"content"`
	ImageData string    `gorm:"type:mediumtext" json:"image_data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func (Message) TableName() string { return "chat_messages" }
