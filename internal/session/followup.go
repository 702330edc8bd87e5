package session

import (
	"context"
	"encoding/json"
	"strings"
	"time"

	"github.com/cloudwego/eino/schema"

	"github.com/conduit-ai/conduit/internal/event"
	"github.com/conduit-ai/conduit/internal/logging"
	"github.com/conduit-ai/conduit/internal/provider"
)

const followUpTimeout = 30 * time.Second

const titleSystemPrompt = `You generate a concise title for a chat conversation.
Respond with the title only: 3 to 8 words, no quotes, no punctuation at the end.
Use the language of the conversation.`

const tagsSystemPrompt = `You categorize a chat conversation.
Respond with a JSON object of the form {"tags": ["tag1", "tag2"]} and nothing else.
Choose 1 to 3 tags. Tags are short lowercase phrases.`

// taskTarget returns the provider and model follow-ups run against: the
// configured task model when set, otherwise the completion's own model.
func (req StartRequest) taskTarget() (provider.Provider, string) {
	if req.TaskProvider != nil && req.TaskModelID != "" {
		return req.TaskProvider, req.TaskModelID
	}
	return req.Provider, req.ModelID
}

// generateTitle produces a chat title from the conversation so far. It runs
// detached from the session: failures are logged and otherwise ignored.
func (sv *Supervisor) generateTitle(req StartRequest) {
	log := logging.With().Str("chat_id", req.ChatID).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), followUpTimeout)
	defer cancel()

	prompt := conversationExcerpt(req.Messages, 2000)
	if prompt == "" {
		return
	}

	prov, model := req.taskTarget()
	msg, err := prov.Generate(ctx, &provider.CompletionRequest{
		Model: model,
		Messages: []*schema.Message{
			schema.SystemMessage(titleSystemPrompt),
			schema.UserMessage(prompt),
		},
		MaxTokens: 64,
	})
	if err != nil {
		log.Warn().Err(err).Msg("title generation failed")
		return
	}

	title := strings.Trim(strings.TrimSpace(msg.Content), `"'`)
	if title == "" {
		return
	}

	if err := sv.store.UpsertChatFields(ctx, req.ChatID, map[string]any{"title": title}); err != nil {
		log.Warn().Err(err).Msg("title write failed")
		return
	}

	sv.bus.Publish(event.ChatKey(req.ChatID), event.Event{
		Type: event.ChatTitle,
		Data: event.TitleData{ChatID: req.ChatID, Title: title},
	})
}

// generateTags produces category tags for the chat. Like titles it is fully
// detached: no tag output ever affects the completed message.
func (sv *Supervisor) generateTags(req StartRequest) {
	log := logging.With().Str("chat_id", req.ChatID).Logger()

	ctx, cancel := context.WithTimeout(context.Background(), followUpTimeout)
	defer cancel()

	prompt := conversationExcerpt(req.Messages, 4000)
	if prompt == "" {
		return
	}

	system := tagsSystemPrompt
	if len(req.TagSets) > 0 {
		system += "\nChoose only from: " + strings.Join(req.TagSets, ", ")
	}

	prov, model := req.taskTarget()
	msg, err := prov.Generate(ctx, &provider.CompletionRequest{
		Model: model,
		Messages: []*schema.Message{
			schema.SystemMessage(system),
			schema.UserMessage(prompt),
		},
		MaxTokens: 128,
	})
	if err != nil {
		log.Warn().Err(err).Msg("tag generation failed")
		return
	}

	tags := parseTags(msg.Content)
	if len(req.TagSets) > 0 {
		tags = intersect(tags, req.TagSets)
	}
	if len(tags) == 0 {
		return
	}

	if err := sv.store.UpsertChatFields(ctx, req.ChatID, map[string]any{"tags": tags}); err != nil {
		log.Warn().Err(err).Msg("tags write failed")
		return
	}

	sv.bus.Publish(event.ChatKey(req.ChatID), event.Event{
		Type: event.ChatTags,
		Data: event.TagsData{ChatID: req.ChatID, Tags: tags},
	})
}

// parseTags extracts the tag list from a model response, tolerating fenced
// JSON.
func parseTags(content string) []string {
	content = strings.TrimSpace(content)
	content = strings.TrimPrefix(content, "```json")
	content = strings.TrimPrefix(content, "```")
	content = strings.TrimSuffix(content, "```")
	content = strings.TrimSpace(content)

	var payload struct {
		Tags []string `json:"tags"`
	}
	if err := json.Unmarshal([]byte(content), &payload); err == nil && len(payload.Tags) > 0 {
		return normalizeTags(payload.Tags)
	}

	var bare []string
	if err := json.Unmarshal([]byte(content), &bare); err == nil {
		return normalizeTags(bare)
	}
	return nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t != "" {
			out = append(out, t)
		}
	}
	return out
}

func intersect(tags, allowed []string) []string {
	set := make(map[string]bool, len(allowed))
	for _, a := range allowed {
		set[strings.ToLower(a)] = true
	}

	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if set[t] {
			out = append(out, t)
		}
	}
	return out
}

// conversationExcerpt renders the user side of the conversation, truncated
// to limit bytes, as follow-up prompt material.
func conversationExcerpt(messages []*schema.Message, limit int) string {
	var sb strings.Builder
	for _, m := range messages {
		if m.Role != schema.User || m.Content == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		sb.WriteString(m.Content)
	}

	text := sb.String()
	if len(text) > limit {
		text = text[:limit]
	}
	return text
}
