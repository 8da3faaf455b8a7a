package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nodegate/nodegate/internal/model"
	"github.com/nodegate/nodegate/internal/node"
	"github.com/nodegate/nodegate/internal/repository"
)

// memStore is an in-memory stand-in for the Postgres repository.
type memStore struct {
	mu       sync.Mutex
	users    map[string]*model.User       // by email
	keys     map[string]*model.APIKey     // by key value
	requests map[string][]model.KeyRequest // by key id
	seq      int
}

func newMemStore() *memStore {
	return &memStore{
		users:    make(map[string]*model.User),
		keys:     make(map[string]*model.APIKey),
		requests: make(map[string][]model.KeyRequest),
	}
}

func (m *memStore) CreateUser(_ context.Context, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[user.Email]; ok {
		return repository.ErrEmailExists
	}
	u := *user
	m.users[user.Email] = &u
	return nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	copied := *u
	return &copied, nil
}

func (m *memStore) CreateAPIKey(_ context.Context, key *model.APIKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := *key
	m.keys[key.KeyValue] = &k
	return nil
}

func (m *memStore) GetAPIKeyByValue(_ context.Context, keyValue string) (*model.APIKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[keyValue]
	if !ok {
		return nil, repository.ErrAPIKeyNotFound
	}
	copied := *k
	return &copied, nil
}

func (m *memStore) ListKeysWithRequests(_ context.Context, userID string) ([]model.KeyWithRequests, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []model.KeyWithRequests
	for _, k := range m.keys {
		if k.UserID != userID {
			continue
		}
		reqs := append([]model.KeyRequest(nil), m.requests[k.ID]...)
		if reqs == nil {
			reqs = []model.KeyRequest{}
		}
		out = append(out, model.KeyWithRequests{
			KeyValue:  k.KeyValue,
			Enabled:   k.Enabled,
			CreatedAt: k.CreatedAt,
			Requests:  reqs,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *memStore) SetAPIKeyEnabled(_ context.Context, keyValue string, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[keyValue]
	if !ok {
		return repository.ErrAPIKeyNotFound
	}
	k.Enabled = enabled
	return nil
}

func (m *memStore) DeleteAPIKey(_ context.Context, keyValue string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k, ok := m.keys[keyValue]
	if !ok {
		return repository.ErrAPIKeyNotFound
	}
	delete(m.requests, k.ID)
	delete(m.keys, keyValue)
	return nil
}

func (m *memStore) RecordKeyRequest(_ context.Context, apiKeyID string) (*model.KeyRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.seq++
	req := model.KeyRequest{
		ID:          fmt.Sprintf("req-%d", m.seq),
		APIKeyID:    apiKeyID,
		RequestedAt: time.Now().UTC(),
	}
	m.requests[apiKeyID] = append(m.requests[apiKeyID], req)
	return &req, nil
}

func (m *memStore) requestCount(apiKeyID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests[apiKeyID])
}

// memKeyCache is an in-memory KeyCache.
type memKeyCache struct {
	mu      sync.Mutex
	entries map[string]*model.APIKey
	sets    int
	deletes int
}

func newMemKeyCache() *memKeyCache {
	return &memKeyCache{entries: make(map[string]*model.APIKey)}
}

func (c *memKeyCache) GetAPIKey(_ context.Context, keyValue string) (*model.APIKey, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	k, ok := c.entries[keyValue]
	if !ok {
		return nil, nil
	}
	copied := *k
	return &copied, nil
}

func (c *memKeyCache) SetAPIKey(_ context.Context, key *model.APIKey) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	k := *key
	c.entries[key.KeyValue] = &k
	c.sets++
	return nil
}

func (c *memKeyCache) DeleteAPIKey(_ context.Context, keyValue string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, keyValue)
	c.deletes++
	return nil
}

// memRevoker records revoked session token ids.
type memRevoker struct {
	mu      sync.Mutex
	revoked map[string]time.Duration
}

func newMemRevoker() *memRevoker {
	return &memRevoker{revoked: make(map[string]time.Duration)}
}

func (r *memRevoker) RevokeSession(_ context.Context, tokenID string, ttl time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.revoked[tokenID] = ttl
	return nil
}

func (r *memRevoker) IsSessionRevoked(_ context.Context, tokenID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[tokenID]
	return ok, nil
}

func (r *memRevoker) isRevoked(tokenID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.revoked[tokenID]
	return ok
}

// fakeNode is a canned NodeInvoker.
type fakeNode struct {
	resp  *node.Response
	err   error
	calls int
}

func (f *fakeNode) Reprovide(context.Context) (*node.Response, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.resp, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
