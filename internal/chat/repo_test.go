package chat

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func TestDeleteChat_CascadesMessages(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.CreateChat(ctx, &Chat{ChatID: "01CHAT", UserID: "01USER", Title: DefaultTitle}))
	require.NoError(t, repo.InsertMessage(ctx, &Message{ChatID: "01CHAT", UserID: "01USER", Role: RoleUser, Content: "hi"}))
	require.NoError(t, repo.InsertMessage(ctx, &Message{ChatID: "01CHAT", UserID: "01USER", Role: RoleAssistant, Content: "hello"}))

	require.NoError(t, repo.DeleteChat(ctx, "01CHAT"))

	_, err := repo.GetChatByChatID(ctx, "01CHAT")
	require.ErrorIs(t, err, gorm.ErrRecordNotFound)

	msgs, err := repo.ListMessages(ctx, "01CHAT")
	require.NoError(t, err)
	require.Empty(t, msgs)
}

func TestDeleteMessagesAfter(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.CreateChat(ctx, &Chat{ChatID: "01CHAT", UserID: "01USER", Title: DefaultTitle}))

	var ids []uint64
	for _, content := range []string{"U1", "A1", "U2", "A2"} {
		m := &Message{ChatID: "01CHAT", UserID: "01USER", Role: RoleUser, Content: content}
		require.NoError(t, repo.InsertMessage(ctx, m))
		ids = append(ids, m.ID)
	}

	require.NoError(t, repo.DeleteMessagesAfter(ctx, "01CHAT", ids[2]))

	msgs, err := repo.ListMessages(ctx, "01CHAT")
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	require.Equal(t, "U2", msgs[2].Content)
}

func TestListChatsByUser_MostRecentFirst(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, repo.CreateChat(ctx, &Chat{ChatID: "01OLD", UserID: "01USER", Title: "old"}))
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.CreateChat(ctx, &Chat{ChatID: "01NEW", UserID: "01USER", Title: "new"}))

	chats, err := repo.ListChatsByUser(ctx, "01USER")
	require.NoError(t, err)
	require.Len(t, chats, 2)
	require.Equal(t, "01NEW", chats[0].ChatID)

	// Activity bumps a chat back to the top.
	time.Sleep(10 * time.Millisecond)
	require.NoError(t, repo.TouchChat(ctx, "01OLD"))

	chats, err = repo.ListChatsByUser(ctx, "01USER")
	require.NoError(t, err)
	require.Equal(t, "01OLD", chats[0].ChatID)
}

func TestCreateJobOrGetExisting_Idempotent(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	key := "retry-key"
	first := &Job{ID: "01JOBA", UserID: "01USER", ChatID: "01CHAT", Prompt: "p", IdempotencyKey: &key, Status: JobQueued}
	j, created, err := repo.CreateJobOrGetExisting(ctx, first)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "01JOBA", j.ID)

	dup := &Job{ID: "01JOBB", UserID: "01USER", ChatID: "01CHAT", Prompt: "p", IdempotencyKey: &key, Status: JobQueued}
	j, created, err = repo.CreateJobOrGetExisting(ctx, dup)
	require.NoError(t, err)
	require.False(t, created)
	require.Equal(t, "01JOBA", j.ID)
}

func TestCreateJobOrGetExisting_KeyIsScopedToUser(t *testing.T) {
	repo := NewRepo(openTestDB(t))
	ctx := context.Background()

	key := "retry-key"
	first := &Job{ID: "01JOBA", UserID: "01ALICE", ChatID: "01CHATA", Prompt: "p", IdempotencyKey: &key, Status: JobQueued}
	_, created, err := repo.CreateJobOrGetExisting(ctx, first)
	require.NoError(t, err)
	require.True(t, created)

	// Another user reusing the same key gets an independent job.
	other := &Job{ID: "01JOBB", UserID: "01BOB", ChatID: "01CHATB", Prompt: "q", IdempotencyKey: &key, Status: JobQueued}
	j, created, err := repo.CreateJobOrGetExisting(ctx, other)
	require.NoError(t, err)
	require.True(t, created)
	require.Equal(t, "01JOBB", j.ID)
}
