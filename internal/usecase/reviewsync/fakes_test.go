package reviewsync

import (
	"context"
	"errors"
	"sync"
	"time"

	"protalk/internal/domain/entity"
)

/* ───── ヘルパ ───── */

type fakeSource struct {
	mu      sync.Mutex
	reviews map[string][]entity.Review
	errs    map[string]error
	calls   []string
}

func (f *fakeSource) FetchReviews(_ context.Context, appID string) ([]entity.Review, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, appID)
	if err := f.errs[appID]; err != nil {
		return nil, err
	}
	out := make([]entity.Review, len(f.reviews[appID]))
	copy(out, f.reviews[appID])
	return out, nil
}

// memStore mirrors the upsert semantics of the SQL stores.
type memStore struct {
	mu          sync.Mutex
	reviews     map[string]entity.Review
	syncTimes   map[string]time.Time
	upsertCalls [][]entity.Review

	upsertErr     error
	existingErr   error
	byIDsErr      error
	updateSyncErr error
}

func newMemStore() *memStore {
	return &memStore{reviews: map[string]entity.Review{}, syncTimes: map[string]time.Time{}}
}

func (m *memStore) UpsertReviews(_ context.Context, reviews []entity.Review) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.upsertErr != nil {
		return m.upsertErr
	}
	m.upsertCalls = append(m.upsertCalls, reviews)
	for _, r := range reviews {
		if old, ok := m.reviews[r.ID]; ok {
			if !old.FirstSyncAt.IsZero() && (r.FirstSyncAt.IsZero() || old.FirstSyncAt.Before(r.FirstSyncAt)) {
				r.FirstSyncAt = old.FirstSyncAt
			}
			r.IsPushed = r.IsPushed || old.IsPushed
			if r.PushType == "" {
				r.PushType = old.PushType
			}
		}
		m.reviews[r.ID] = r
	}
	return nil
}

func (m *memStore) GetExistingReviewIDs(_ context.Context, appID string) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.existingErr != nil {
		return nil, m.existingErr
	}
	ids := map[string]struct{}{}
	for id, r := range m.reviews {
		if r.AppID == appID {
			ids[id] = struct{}{}
		}
	}
	return ids, nil
}

func (m *memStore) GetReviewsByIDs(_ context.Context, ids []string) (map[string]entity.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byIDsErr != nil {
		return nil, m.byIDsErr
	}
	out := map[string]entity.Review{}
	for _, id := range ids {
		if r, ok := m.reviews[id]; ok {
			out[id] = r
		}
	}
	return out, nil
}

func (m *memStore) UpdateReply(context.Context, string, string, time.Time) error {
	return errors.New("not used")
}

func (m *memStore) HasReply(context.Context, string) (bool, error) { return false, nil }

func (m *memStore) GetLastSyncTime(_ context.Context, appID string) (*time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.syncTimes[appID]
	if !ok {
		return nil, nil
	}
	return &t, nil
}

func (m *memStore) UpdateSyncTime(_ context.Context, appID string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.updateSyncErr != nil {
		return m.updateSyncErr
	}
	m.syncTimes[appID] = at
	return nil
}

func (m *memStore) watermark(appID string) (time.Time, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	t, ok := m.syncTimes[appID]
	return t, ok
}

type pushCall struct {
	kind entity.PushType
	ids  []string
}

type fakeNotifier struct {
	mu    sync.Mutex
	calls []pushCall
	err   error
}

func (f *fakeNotifier) NotifyReviews(_ context.Context, kind entity.PushType, reviews []entity.Review) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return 0, f.err
	}
	ids := make([]string, len(reviews))
	for i, r := range reviews {
		ids[i] = r.ID
	}
	f.calls = append(f.calls, pushCall{kind: kind, ids: ids})
	return len(reviews), nil
}

var fixedNow = time.Date(2025, 7, 20, 12, 0, 0, 0, time.UTC)

func mkReview(appID, id string, age time.Duration) entity.Review {
	return entity.Review{
		ID:               id,
		AppID:            appID,
		Rating:           4,
		Title:            "title " + id,
		Body:             "body " + id,
		ReviewerNickname: "nick",
		CreatedDate:      fixedNow.Add(-age),
	}
}
