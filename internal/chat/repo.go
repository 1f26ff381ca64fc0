package chat

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
)

type Repo struct {
	db *gorm.DB
}

func NewRepo(db *gorm.DB) *Repo {
	return &Repo{db: db}
}

func (r *Repo) CreateChat(ctx context.Context, c *Chat) error {
	return r.db.WithContext(ctx).Create(c).Error
}

func (r *Repo) GetChatByChatID(ctx context.Context, chatID string) (*Chat, error) {
	var c Chat
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		First(&c).Error; err != nil {
		return nil, err
	}
	return &c, nil
}

// ListChatsByUser returns the user's chats, most recently active first.
func (r *Repo) ListChatsByUser(ctx context.Context, userID string) ([]Chat, error) {
	var chats []Chat
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("updated_at DESC").
		Find(&chats).Error; err != nil {
		return nil, err
	}
	return chats, nil
}

func (r *Repo) UpdateChatTitle(ctx context.Context, chatID, title string) error {
	return r.db.WithContext(ctx).Model(&Chat{}).
		Where("chat_id = ?", chatID).
		Update("title", title).Error
}

// TouchChat bumps updated_at so the chat sorts to the top of the sidebar.
func (r *Repo) TouchChat(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Model(&Chat{}).
		Where("chat_id = ?", chatID).
		Update("updated_at", time.Now()).Error
}

// DeleteChat removes the chat and cascades to its messages.
func (r *Repo) DeleteChat(ctx context.Context, chatID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&Message{}, "chat_id = ?", chatID).Error; err != nil {
			return err
		}
		return tx.Delete(&Chat{}, "chat_id = ?", chatID).Error
	})
}

func (r *Repo) InsertMessage(ctx context.Context, m *Message) error {
	return r.db.WithContext(ctx).Create(m).Error
}

// ListMessages returns the chat's messages in storage order (oldest first).
func (r *Repo) ListMessages(ctx context.Context, chatID string) ([]Message, error) {
	var msgs []Message
	if err := r.db.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("id ASC").
		Find(&msgs).Error; err != nil {
		return nil, err
	}
	return msgs, nil
}

func (r *Repo) CountMessages(ctx context.Context, chatID string) (int64, error) {
	var n int64
	if err := r.db.WithContext(ctx).Model(&Message{}).
		Where("chat_id = ?", chatID).
		Count(&n).Error; err != nil {
		return 0, err
	}
	return n, nil
}

func (r *Repo) DeleteMessage(ctx context.Context, chatID string, messageID uint64) error {
	return r.db.WithContext(ctx).
		Delete(&Message{}, "chat_id = ? AND id = ?", chatID, messageID).Error
}

// DeleteMessagesAfter removes every message newer than afterID, truncating
// the conversation at that message.
func (r *Repo) DeleteMessagesAfter(ctx context.Context, chatID string, afterID uint64) error {
	return r.db.WithContext(ctx).
		Delete(&Message{}, "chat_id = ? AND id > ?", chatID, afterID).Error
}

// Job CRUD

func (r *Repo) CreateJob(ctx context.Context, job *Job) error {
	return r.db.WithContext(ctx).Create(job).Error
}

func (r *Repo) GetJobByID(ctx context.Context, id string) (*Job, error) {
	var j Job
	if err := r.db.WithContext(ctx).First(&j, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &j, nil
}

func (r *Repo) UpdateJobStatusRunning(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ? AND status = ?", id, JobQueued).
		Update("status", JobRunning).Error
}

func (r *Repo) MarkJobSucceeded(ctx context.Context, id string, assistantMsgID uint64) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobSucceeded,
			"result_message_id": assistantMsgID,
			"error":             nil,
		}).Error
}

func (r *Repo) MarkJobFailed(ctx context.Context, id string, errMsg string) error {
	return r.db.WithContext(ctx).Model(&Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":            JobFailed,
			"error":             errMsg,
			"result_message_id": nil,
		}).Error
}

func (r *Repo) GetJobByUserAndIdempotencyKey(ctx context.Context, userID, key string) (*Job, error) {
	var job Job
	if err := r.db.WithContext(ctx).
		Where("user_id = ? AND idempotency_key = ?", userID, key).
		First(&job).Error; err != nil {
		return nil, err
	}
	return &job, nil
}

// CreateJobOrGetExisting tries to create a job; if (user_id, idempotency_key)
// already exists it returns the existing job instead.
func (r *Repo) CreateJobOrGetExisting(ctx context.Context, job *Job) (*Job, bool, error) {
	if job.IdempotencyKey == nil || *job.IdempotencyKey == "" {
		job.IdempotencyKey = nil
		if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
			return nil, false, err
		}
		return job, true, nil
	}

	err := r.db.WithContext(ctx).Create(job).Error
	if err == nil {
		return job, true, nil
	}

	existing, getErr := r.GetJobByUserAndIdempotencyKey(ctx, job.UserID, *job.IdempotencyKey)
	if getErr == nil {
		return existing, false, nil
	}
	if errors.Is(getErr, gorm.ErrRecordNotFound) {
		return nil, false, err
	}
	return nil, false, getErr
}
