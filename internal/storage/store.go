// Package storage provides the conversation store: durable, file-backed
// JSON documents for chats and messages. Writes are atomic (temp file +
// rename) and field upserts merge into the existing document, so re-issuing
// the same checkpoint after a transient failure overwrites rather than
// appends.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

var ErrNotFound = errors.New("not found")

// Store is the durable projection of in-flight sessions. It is shared
// across sessions but naturally partitioned: at most one session ever
// holds write authority over a given message id.
type Store struct {
	basePath string

	mu    sync.Mutex
	locks map[string]*FileLock
}

// New creates a store rooted at basePath.
func New(basePath string) *Store {
	return &Store{
		basePath: basePath,
		locks:    make(map[string]*FileLock),
	}
}

func (s *Store) messagePath(messageID string) string {
	return filepath.Join(s.basePath, "messages", messageID+".json")
}

func (s *Store) chatPath(chatID string) string {
	return filepath.Join(s.basePath, "chats", chatID+".json")
}

func (s *Store) getLock(path string) *FileLock {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[path]
	if !ok {
		lock = NewFileLock(path)
		s.locks[path] = lock
	}
	return lock
}

// GetMessage returns the stored document for a message id.
func (s *Store) GetMessage(ctx context.Context, messageID string) (map[string]any, error) {
	return s.read(s.messagePath(messageID))
}

// GetChat returns the stored document for a chat id.
func (s *Store) GetChat(ctx context.Context, chatID string) (map[string]any, error) {
	return s.read(s.chatPath(chatID))
}

// UpsertMessageFields merges fields into the message document, creating it
// when absent. Nested maps merge recursively; scalar fields replace.
func (s *Store) UpsertMessageFields(ctx context.Context, messageID string, fields map[string]any) error {
	return s.upsert(s.messagePath(messageID), fields)
}

// UpsertChatFields merges fields into the chat document.
func (s *Store) UpsertChatFields(ctx context.Context, chatID string, fields map[string]any) error {
	return s.upsert(s.chatPath(chatID), fields)
}

// SetActiveMessage marks a message as the chat's active (currently shown)
// message.
func (s *Store) SetActiveMessage(ctx context.Context, chatID, messageID string) error {
	return s.upsert(s.chatPath(chatID), map[string]any{"active_message_id": messageID})
}

func (s *Store) read(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read document: %w", err)
	}

	var doc map[string]any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	return doc, nil
}

func (s *Store) upsert(path string, fields map[string]any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create directory: %w", err)
	}

	lock := s.getLock(path)
	if err := lock.Lock(); err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	defer lock.Unlock()

	doc, err := s.read(path)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			return err
		}
		doc = make(map[string]any)
	}

	mergeFields(doc, fields)

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("rename document: %w", err)
	}

	return nil
}

// mergeFields merges src into dst. Map values merge recursively so
// patch-style fields accumulate instead of clobbering siblings.
func mergeFields(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				mergeFields(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
}
