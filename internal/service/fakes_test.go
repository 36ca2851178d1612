package service

import (
	"context"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MTL667/denbeyers/internal/domain/model"
	"github.com/MTL667/denbeyers/internal/repository"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- UserRepository ---

type fakeUserRepo struct {
	mu       sync.Mutex
	upserts  []model.UserProfile
	ensured  []model.UserProfile
	existing map[string]bool
	err      error
}

func (f *fakeUserRepo) Upsert(_ context.Context, p model.UserProfile) (*model.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.upserts = append(f.upserts, p)
	u := &model.User{ID: "u-" + p.Subject, KeycloakSub: p.Subject, Role: p.Role}
	if p.Name != "" {
		u.Name = &p.Name
	}
	if p.Email != "" {
		u.Email = &p.Email
	}
	return u, nil
}

func (f *fakeUserRepo) EnsureExists(_ context.Context, p model.UserProfile) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return false, f.err
	}
	f.ensured = append(f.ensured, p)
	if f.existing[p.Subject] {
		return false, nil
	}
	if f.existing == nil {
		f.existing = map[string]bool{}
	}
	f.existing[p.Subject] = true
	return true, nil
}

// --- ObjectStore ---

type fakeStore struct {
	mu        sync.Mutex
	puts      []string
	putTypes  []string
	gets      []string
	deletes   []string
	expiry    time.Duration
	err       error
	deleteErr error
}

func (f *fakeStore) PresignPut(_ context.Context, key, contentType string, expires time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.puts = append(f.puts, key)
	f.putTypes = append(f.putTypes, contentType)
	f.expiry = expires
	return "https://s3.test/put/" + key, nil
}

func (f *fakeStore) PresignGet(_ context.Context, key string, expires time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	f.gets = append(f.gets, key)
	f.expiry = expires
	return "https://s3.test/get/" + key, nil
}

func (f *fakeStore) Delete(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes = append(f.deletes, key)
	return f.deleteErr
}

// --- MediaRepository ---

type fakeMediaRepo struct {
	mu    sync.Mutex
	items map[string]*model.MediaItem

	lockCalls    int
	publicFilter repository.PublicFilter
	adminFilter  repository.AdminFilter
	list         []*model.MediaItem
	listErr      error
	stats        *model.MediaStats
	createErr    error
}

func newFakeMediaRepo(items ...*model.MediaItem) *fakeMediaRepo {
	f := &fakeMediaRepo{items: map[string]*model.MediaItem{}}
	for _, it := range items {
		f.items[it.ID] = it
	}
	return f
}

func (f *fakeMediaRepo) Create(_ context.Context, item *model.MediaItem) error {
	if f.createErr != nil {
		return f.createErr
	}
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	cp := *item
	f.items[item.ID] = &cp
	return nil
}

func (f *fakeMediaRepo) GetByID(_ context.Context, id string) (*model.MediaItem, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *it
	return &cp, nil
}

func (f *fakeMediaRepo) Update(_ context.Context, id string, upd repository.MediaUpdate) (*model.MediaItem, error) {
	it, ok := f.items[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if upd.Message != nil {
		it.Message = upd.Message
	}
	if upd.DisplayName != nil {
		it.DisplayName = upd.DisplayName
	}
	if upd.Approved != nil {
		it.Approved = *upd.Approved
	}
	if upd.Visible != nil {
		it.Visible = *upd.Visible
	}
	if upd.IsSticky != nil {
		it.IsSticky = *upd.IsSticky
	}
	switch {
	case upd.StickyOrder != nil:
		order := *upd.StickyOrder
		it.StickyOrder = &order
	case upd.ClearStickyOrder:
		it.StickyOrder = nil
	}
	cp := *it
	return &cp, nil
}

func (f *fakeMediaRepo) Delete(_ context.Context, id string) error {
	if _, ok := f.items[id]; !ok {
		return repository.ErrNotFound
	}
	delete(f.items, id)
	return nil
}

func (f *fakeMediaRepo) ListPublic(_ context.Context, flt repository.PublicFilter) ([]*model.MediaItem, error) {
	f.publicFilter = flt
	if f.listErr != nil {
		return nil, f.listErr
	}
	return truncate(f.list, flt.Limit), nil
}

func (f *fakeMediaRepo) ListAdmin(_ context.Context, flt repository.AdminFilter) ([]*model.MediaItem, error) {
	f.adminFilter = flt
	if f.listErr != nil {
		return nil, f.listErr
	}
	return truncate(f.list, flt.Limit), nil
}

func (f *fakeMediaRepo) Stats(context.Context) (*model.MediaStats, error) {
	if f.stats == nil {
		return &model.MediaStats{}, nil
	}
	return f.stats, nil
}

func (f *fakeMediaRepo) CountSticky(context.Context) (int, error) {
	n := 0
	for _, it := range f.items {
		if it.IsSticky {
			n++
		}
	}
	return n, nil
}

func (f *fakeMediaRepo) MaxStickyOrder(context.Context) (int, error) {
	var orders []int
	for _, it := range f.items {
		if it.IsSticky && it.StickyOrder != nil {
			orders = append(orders, *it.StickyOrder)
		}
	}
	if len(orders) == 0 {
		return 0, nil
	}
	sort.Ints(orders)
	return orders[len(orders)-1], nil
}

func (f *fakeMediaRepo) WithStickyLock(_ context.Context, fn func(repo repository.MediaRepository) error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lockCalls++
	return fn(f)
}

func truncate(items []*model.MediaItem, n int) []*model.MediaItem {
	if len(items) > n {
		return items[:n]
	}
	return items
}
