package events

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/ternarybob/arbor"

	"github.com/ternarybob/cavitas/internal/interfaces"
	"github.com/ternarybob/cavitas/internal/models"
)

// memoryStorage is an in-memory EventStorage
type memoryStorage struct {
	mu      sync.Mutex
	records []*models.EventRecord
}

func (m *memoryStorage) Append(ctx context.Context, record *models.EventRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records = append(m.records, record)
	return nil
}

func (m *memoryStorage) Recent(ctx context.Context, limit int) ([]*models.EventRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := append([]*models.EventRecord(nil), m.records...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *memoryStorage) DeleteBefore(ctx context.Context, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[:0]
	for _, r := range m.records {
		if !r.CreatedAt.Before(cutoff) {
			kept = append(kept, r)
		}
	}
	deleted := len(m.records) - len(kept)
	m.records = kept
	return deleted, nil
}

func TestHistoryRecorder_RecordsPublishedEvents(t *testing.T) {
	storage := &memoryStorage{}
	history := NewHistoryRecorder(storage, arbor.NewLogger())

	svc := NewService(arbor.NewLogger(), 0)
	require.NoError(t, history.Attach(svc))

	ctx := context.Background()
	require.NoError(t, svc.Publish(ctx, interfaces.Event{
		Type:    interfaces.EventJobExpired,
		Payload: models.JobEventPayload{JobID: "abc"},
	}))
	require.NoError(t, svc.Close())

	records, err := history.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, string(interfaces.EventJobExpired), records[0].Type)

	var payload models.JobEventPayload
	require.NoError(t, json.Unmarshal(records[0].Payload, &payload))
	assert.Equal(t, "abc", payload.JobID)
}

func TestHistoryRecorder_Prune(t *testing.T) {
	storage := &memoryStorage{}
	history := NewHistoryRecorder(storage, arbor.NewLogger())
	ctx := context.Background()

	now := time.Now()
	require.NoError(t, storage.Append(ctx, &models.EventRecord{ID: "old", CreatedAt: now.Add(-48 * time.Hour)}))
	require.NoError(t, storage.Append(ctx, &models.EventRecord{ID: "new", CreatedAt: now.Add(-time.Minute)}))

	require.NoError(t, history.Prune(ctx, 24*time.Hour))

	records, err := history.Recent(ctx, 0)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "new", records[0].ID)
}
