package artifact

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// MemoryArchive is the in-process Archive used when no bucket is configured.
type MemoryArchive struct {
	mu   sync.RWMutex
	data map[string][]byte
}

func NewMemoryArchive() *MemoryArchive {
	return &MemoryArchive{
		data: make(map[string][]byte),
	}
}

func (s *MemoryArchive) Put(_ context.Context, conversationID, name string, content []byte) error {
	conversationID = strings.TrimSpace(conversationID)
	name = strings.TrimSpace(name)
	if conversationID == "" {
		return fmt.Errorf("artifact: conversation_id is required")
	}
	if name == "" {
		return fmt.Errorf("artifact: name is required")
	}
	key := objectKey(conversationID, name)
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = append([]byte(nil), content...)
	return nil
}

func (s *MemoryArchive) Get(_ context.Context, conversationID, name string) ([]byte, error) {
	conversationID = strings.TrimSpace(conversationID)
	name = strings.TrimSpace(name)
	if conversationID == "" {
		return nil, fmt.Errorf("artifact: conversation_id is required")
	}
	if name == "" {
		return nil, fmt.Errorf("artifact: name is required")
	}
	key := objectKey(conversationID, name)
	s.mu.RLock()
	defer s.mu.RUnlock()
	raw, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), raw...), nil
}

func (s *MemoryArchive) List(_ context.Context, conversationID string) ([]string, error) {
	conversationID = strings.TrimSpace(conversationID)
	if conversationID == "" {
		return nil, fmt.Errorf("artifact: conversation_id is required")
	}
	prefix := conversationID + "/"
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, 16)
	for key := range s.data {
		if !strings.HasPrefix(key, prefix) {
			continue
		}
		out = append(out, strings.TrimPrefix(key, prefix))
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryArchive) GetURL(_ context.Context, _, _ string) (string, error) {
	// Memory archive has nothing to presign.
	return "", nil
}
