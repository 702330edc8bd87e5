package session

import (
	"context"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/conduit-ai/conduit/internal/event"
)

func TestGenerateTitleWritesAndPublishes(t *testing.T) {
	sv, _, store, rec := newTestSupervisor(t)

	prov := &scriptedProvider{generated: textMsg(`"Weather in Paris"`)}

	req := baseRequest(prov)
	sv.generateTitle(req)

	chat, err := store.GetChat(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "Weather in Paris", chat["title"])

	titles := rec.byType(event.ChatTitle)
	require.Len(t, titles, 1)
	assert.Equal(t, "Weather in Paris", titles[0].Data.(event.TitleData).Title)
}

func TestGenerateTitleFailureIsSilent(t *testing.T) {
	sv, _, store, rec := newTestSupervisor(t)

	prov := &scriptedProvider{genErr: assert.AnError}

	req := baseRequest(prov)
	sv.generateTitle(req)

	_, err := store.GetChat(context.Background(), "chat-1")
	assert.Error(t, err)
	assert.Empty(t, rec.byType(event.ChatTitle))
}

func TestFollowUpsUseTaskModel(t *testing.T) {
	sv, _, _, _ := newTestSupervisor(t)

	sessionProv := &scriptedProvider{}
	taskProv := &scriptedProvider{generated: textMsg("Title")}

	req := baseRequest(sessionProv)
	req.TaskProvider = taskProv
	req.TaskModelID = "scripted/task-model"
	sv.generateTitle(req)

	require.Len(t, taskProv.requests, 1)
	assert.Equal(t, "scripted/task-model", taskProv.requests[0].Model)
	assert.Empty(t, sessionProv.requests)
}

func TestGenerateTagsConstrainedToTagSet(t *testing.T) {
	sv, _, store, rec := newTestSupervisor(t)

	prov := &scriptedProvider{generated: textMsg("```json\n{\"tags\": [\"Travel\", \"cooking\"]}\n```")}

	req := baseRequest(prov)
	req.TagSets = []string{"travel", "finance"}
	sv.generateTags(req)

	chat, err := store.GetChat(context.Background(), "chat-1")
	require.NoError(t, err)

	tags, ok := chat["tags"].([]any)
	require.True(t, ok)
	require.Len(t, tags, 1)
	assert.Equal(t, "travel", tags[0])

	events := rec.byType(event.ChatTags)
	require.Len(t, events, 1)
	assert.Equal(t, []string{"travel"}, events[0].Data.(event.TagsData).Tags)
}

func TestGenerateTagsNoMatchWritesNothing(t *testing.T) {
	sv, _, store, _ := newTestSupervisor(t)

	prov := &scriptedProvider{generated: textMsg(`{"tags": ["sports"]}`)}

	req := baseRequest(prov)
	req.TagSets = []string{"travel"}
	sv.generateTags(req)

	_, err := store.GetChat(context.Background(), "chat-1")
	assert.Error(t, err)
}

func TestFollowUpsRunDetachedAfterCompletion(t *testing.T) {
	sv, _, store, rec := newTestSupervisor(t)

	prov := &scriptedProvider{
		scripts: [][]*schema.Message{{
			textMsg("hello"),
			finishMsg("stop", 1, 1),
		}},
		generated: textMsg("Greeting"),
	}

	req := baseRequest(prov)
	req.Stream = true
	req.GenerateTitle = true
	require.NoError(t, sv.Start(req))

	waitFor(t, func() bool { return len(rec.byType(event.ChatTitle)) == 1 })

	chat, err := store.GetChat(context.Background(), "chat-1")
	require.NoError(t, err)
	assert.Equal(t, "Greeting", chat["title"])
}

func TestParseTags(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, parseTags(`{"tags": ["a", "b"]}`))
	assert.Equal(t, []string{"a"}, parseTags("```json\n{\"tags\": [\"A\"]}\n```"))
	assert.Equal(t, []string{"x"}, parseTags(`["x"]`))
	assert.Nil(t, parseTags("not json"))
	assert.Nil(t, parseTags(`{"tags": []}`))
}

func TestConversationExcerpt(t *testing.T) {
	messages := []*schema.Message{
		schema.SystemMessage("system"),
		schema.UserMessage("first"),
		{Role: schema.Assistant, Content: "reply"},
		schema.UserMessage("second"),
	}

	excerpt := conversationExcerpt(messages, 100)
	assert.Equal(t, "first\nsecond", excerpt)

	assert.Equal(t, "fi", conversationExcerpt(messages, 2))
	assert.Empty(t, conversationExcerpt(nil, 100))
}

func TestFollowUpPromptsSentToProvider(t *testing.T) {
	sv, _, _, _ := newTestSupervisor(t)

	prov := &scriptedProvider{generated: textMsg("Title")}
	req := baseRequest(prov)
	sv.generateTitle(req)

	require.Len(t, prov.requests, 1)
	messages := prov.requests[0].Messages
	require.Len(t, messages, 2)
	assert.Equal(t, schema.System, messages[0].Role)
	assert.Equal(t, schema.User, messages[1].Role)
	assert.Equal(t, "hi", messages[1].Content)
}
