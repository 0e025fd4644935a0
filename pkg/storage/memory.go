package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/JaimeStill/canopy/pkg/lifecycle"
)

type memoryBlob struct {
	data []byte
	meta BlobMeta
}

type memory struct {
	mu     sync.RWMutex
	blobs  map[string]memoryBlob
	logger *slog.Logger
	now    func() time.Time
}

// NewMemory creates a System that keeps blobs in process memory. Contents
// are lost when the process exits.
func NewMemory(logger *slog.Logger) System {
	return &memory{
		blobs:  make(map[string]memoryBlob),
		logger: logger.With("system", "storage"),
		now:    time.Now,
	}
}

func (m *memory) Start(lc *lifecycle.Coordinator) error {
	m.logger.Warn("using in-memory blob storage; archives will not survive a restart")
	return nil
}

func (m *memory) Upload(ctx context.Context, key string, reader io.Reader, contentType string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("upload blob %s: %w", key, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.blobs[key] = memoryBlob{
		data: data,
		meta: BlobMeta{
			Name:          key,
			ContentType:   contentType,
			ContentLength: int64(len(data)),
			LastModified:  m.now().UTC(),
		},
	}
	return nil
}

func (m *memory) Download(ctx context.Context, key string) (*BlobResult, error) {
	b, err := m.get(key)
	if err != nil {
		return nil, err
	}
	return &BlobResult{
		Body:          io.NopCloser(bytes.NewReader(b.data)),
		ContentType:   b.meta.ContentType,
		ContentLength: b.meta.ContentLength,
	}, nil
}

func (m *memory) Find(ctx context.Context, key string) (*BlobMeta, error) {
	b, err := m.get(key)
	if err != nil {
		return nil, err
	}
	meta := b.meta
	return &meta, nil
}

// List orders blobs by name. The marker is the name of the first blob of
// the requested page.
func (m *memory) List(ctx context.Context, prefix, marker string, maxResults int32) (*BlobList, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.blobs))
	for name := range m.blobs {
		if strings.HasPrefix(name, prefix) && name >= marker {
			names = append(names, name)
		}
	}
	slices.Sort(names)

	list := &BlobList{Blobs: []BlobMeta{}}
	for i, name := range names {
		if int32(i) == maxResults {
			list.NextMarker = name
			break
		}
		list.Blobs = append(list.Blobs, m.blobs[name].meta)
	}
	return list, nil
}

func (m *memory) Delete(ctx context.Context, key string) error {
	if err := validateKey(key); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.blobs[key]; !ok {
		return ErrNotFound
	}
	delete(m.blobs, key)
	return nil
}

func (m *memory) Exists(ctx context.Context, key string) (bool, error) {
	_, err := m.get(key)
	if err == ErrNotFound {
		return false, nil
	}
	return err == nil, err
}

func (m *memory) get(key string) (memoryBlob, error) {
	if err := validateKey(key); err != nil {
		return memoryBlob{}, err
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.blobs[key]
	if !ok {
		return memoryBlob{}, ErrNotFound
	}
	return b, nil
}
