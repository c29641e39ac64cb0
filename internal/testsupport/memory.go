package testsupport

import (
	"context"
	"sort"
	"sync"
	"time"

	"voicebroker/internal/domain/session"
	"voicebroker/internal/domain/usage"
	"voicebroker/internal/domain/usercontext"
	"voicebroker/pkg/errors"
)

// In-memory implementations of the storage contracts for service tests.
// Each one copies values in and out so callers never share pointers with the store.

func cloneSession(s *session.Session) *session.Session {
	c := *s
	if s.ProviderConversationID != nil {
		id := *s.ProviderConversationID
		c.ProviderConversationID = &id
	}
	if s.EndTime != nil {
		end := *s.EndTime
		c.EndTime = &end
	}
	if s.Metadata != nil {
		c.Metadata = make(session.Metadata, len(s.Metadata))
		for k, v := range s.Metadata {
			c.Metadata[k] = v
		}
	}
	return &c
}

// MemorySessionRepository implements session.Repository
type MemorySessionRepository struct {
	mu   sync.Mutex
	rows map[string]*session.Session

	// CreateErr and UpdateEndErr are returned by the matching call when set
	CreateErr    error
	UpdateEndErr error
}

func NewMemorySessionRepository() *MemorySessionRepository {
	return &MemorySessionRepository{rows: make(map[string]*session.Session)}
}

func (r *MemorySessionRepository) Create(_ context.Context, s *session.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.CreateErr != nil {
		return r.CreateErr
	}
	if _, ok := r.rows[s.ID]; ok {
		return errors.ErrAlreadyExists
	}
	r.rows[s.ID] = cloneSession(s)
	return nil
}

func (r *MemorySessionRepository) GetByID(_ context.Context, id string) (*session.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	s, ok := r.rows[id]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (r *MemorySessionRepository) UpdateProviderID(_ context.Context, id, providerConversationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s, ok := r.rows[id]; ok {
		s.Activate(providerConversationID)
	}
	return nil
}

func (r *MemorySessionRepository) UpdateEnd(_ context.Context, s *session.Session) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.UpdateEndErr != nil {
		return false, r.UpdateEndErr
	}
	row, ok := r.rows[s.ID]
	if !ok || row.Status.IsTerminal() {
		return false, nil
	}
	row.EndTime = s.EndTime
	row.DurationSeconds = s.DurationSeconds
	row.Status = s.Status
	return true, nil
}

func (r *MemorySessionRepository) ListByUser(_ context.Context, userID string, limit int) ([]*session.Session, error) {
	out := r.filter(func(s *session.Session) bool { return s.UserID == userID })
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.After(out[j].StartTime) })
	return truncate(out, limit), nil
}

func (r *MemorySessionRepository) ListNotEnded(_ context.Context, limit int) ([]*session.Session, error) {
	out := r.filter(func(s *session.Session) bool { return !s.Status.IsTerminal() })
	return truncate(out, limit), nil
}

func (r *MemorySessionRepository) ListStale(_ context.Context, olderThan time.Time, limit int) ([]*session.Session, error) {
	out := r.filter(func(s *session.Session) bool {
		return !s.Status.IsTerminal() && s.StartTime.Before(olderThan)
	})
	return truncate(out, limit), nil
}

// Len returns the number of stored rows
func (r *MemorySessionRepository) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// filter returns matching rows ordered by start time ascending
func (r *MemorySessionRepository) filter(keep func(*session.Session) bool) []*session.Session {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]*session.Session, 0)
	for _, s := range r.rows {
		if keep(s) {
			out = append(out, cloneSession(s))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func truncate(list []*session.Session, limit int) []*session.Session {
	if limit > 0 && len(list) > limit {
		return list[:limit]
	}
	return list
}

// MemorySessionCache implements session.Cache. TTLs are recorded but never expire entries;
// use Drop to simulate an expired key.
type MemorySessionCache struct {
	mu       sync.Mutex
	sessions map[string]*session.Session
	active   map[string]struct{}
	byUser   map[string]map[string]struct{}
	claims   map[string]struct{}
	ended    map[string]*session.Session
	ttls     map[string]time.Duration

	// PutErr is returned by Put when set
	PutErr error
}

func NewMemorySessionCache() *MemorySessionCache {
	return &MemorySessionCache{
		sessions: make(map[string]*session.Session),
		active:   make(map[string]struct{}),
		byUser:   make(map[string]map[string]struct{}),
		claims:   make(map[string]struct{}),
		ended:    make(map[string]*session.Session),
		ttls:     make(map[string]time.Duration),
	}
}

func (c *MemorySessionCache) Put(_ context.Context, s *session.Session, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.PutErr != nil {
		return c.PutErr
	}
	c.put(s, ttl)
	return nil
}

func (c *MemorySessionCache) put(s *session.Session, ttl time.Duration) {
	c.sessions[s.ID] = cloneSession(s)
	c.ttls[s.ID] = ttl
	c.active[s.ID] = struct{}{}
	if c.byUser[s.UserID] == nil {
		c.byUser[s.UserID] = make(map[string]struct{})
	}
	c.byUser[s.UserID][s.ID] = struct{}{}
}

func (c *MemorySessionCache) Refresh(_ context.Context, s *session.Session, ttl time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.PutErr != nil {
		return false, c.PutErr
	}
	if _, ok := c.sessions[s.ID]; !ok {
		return false, nil
	}
	if _, held := c.claims[s.ID]; held {
		return false, nil
	}
	if _, done := c.ended[s.ID]; done {
		return false, nil
	}
	c.put(s, ttl)
	return true, nil
}

func (c *MemorySessionCache) Get(_ context.Context, id string) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.sessions[id]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

func (c *MemorySessionCache) Evict(_ context.Context, s *session.Session) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.sessions, s.ID)
	delete(c.ttls, s.ID)
	delete(c.active, s.ID)
	if set := c.byUser[s.UserID]; set != nil {
		delete(set, s.ID)
	}
	return nil
}

func (c *MemorySessionCache) ListActive(_ context.Context) ([]*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.resolve(c.active), nil
}

func (c *MemorySessionCache) ListByUser(_ context.Context, userID string) ([]*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	set := c.byUser[userID]
	if set == nil {
		return []*session.Session{}, nil
	}
	return c.resolve(set), nil
}

// resolve loads the sessions behind an index set and prunes dangling ids
func (c *MemorySessionCache) resolve(set map[string]struct{}) []*session.Session {
	out := make([]*session.Session, 0, len(set))
	for id := range set {
		s, ok := c.sessions[id]
		if !ok {
			delete(set, id)
			continue
		}
		out = append(out, cloneSession(s))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].StartTime.Before(out[j].StartTime) })
	return out
}

func (c *MemorySessionCache) CountActive(_ context.Context) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return int64(len(c.active)), nil
}

func (c *MemorySessionCache) ClaimEnd(_ context.Context, id string, _ time.Duration) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, held := c.claims[id]; held {
		return false, nil
	}
	c.claims[id] = struct{}{}
	return true, nil
}

func (c *MemorySessionCache) ReleaseEnd(_ context.Context, id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.claims, id)
	return nil
}

func (c *MemorySessionCache) MarkEnded(_ context.Context, s *session.Session, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ended[s.ID] = cloneSession(s)
	return nil
}

func (c *MemorySessionCache) GetEnded(_ context.Context, id string) (*session.Session, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.ended[id]
	if !ok {
		return nil, errors.ErrSessionNotFound
	}
	return cloneSession(s), nil
}

// Drop removes the session record but leaves its index memberships, like an expired key
func (c *MemorySessionCache) Drop(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.sessions, id)
}

// TTL returns the ttl of the last Put for id
func (c *MemorySessionCache) TTL(id string) time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ttls[id]
}

// ActiveIDs returns the raw active index, including dangling ids
func (c *MemorySessionCache) ActiveIDs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()

	ids := make([]string, 0, len(c.active))
	for id := range c.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MemoryUsageRepository implements usage.Repository with the upsert serialized under a mutex
type MemoryUsageRepository struct {
	mu   sync.Mutex
	rows map[string]*usage.DailyUsage

	// IncrementErr is returned by Increment when set
	IncrementErr error
	// GetErr is returned by Get when set
	GetErr error
}

func NewMemoryUsageRepository() *MemoryUsageRepository {
	return &MemoryUsageRepository{rows: make(map[string]*usage.DailyUsage)}
}

func usageKey(userID, day string) string {
	return userID + "|" + day
}

func (r *MemoryUsageRepository) Get(_ context.Context, userID, day string) (*usage.DailyUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.GetErr != nil {
		return nil, r.GetErr
	}
	u, ok := r.rows[usageKey(userID, day)]
	if !ok {
		return nil, errors.ErrNotFound
	}
	c := *u
	return &c, nil
}

func (r *MemoryUsageRepository) Increment(_ context.Context, userID, day string, deltaSeconds, limitSeconds int64) (*usage.DailyUsage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.IncrementErr != nil {
		return nil, r.IncrementErr
	}

	key := usageKey(userID, day)
	u, ok := r.rows[key]
	if !ok {
		u = usage.Zero(userID, day, limitSeconds)
		r.rows[key] = u
	}
	u.TotalSeconds += deltaSeconds
	u.SessionCount++
	u.LimitReached = u.TotalSeconds >= u.LimitSeconds
	u.UpdatedAt = time.Now()

	c := *u
	return &c, nil
}

func (r *MemoryUsageRepository) CountLimitReached(_ context.Context, day string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var n int64
	for _, u := range r.rows {
		if u.Date == day && u.LimitReached {
			n++
		}
	}
	return n, nil
}

// MemoryUsageCache implements usage.Cache with the monotonic write rule
type MemoryUsageCache struct {
	mu   sync.Mutex
	rows map[string]usage.DailyUsage

	// GetErr is returned by Get when set
	GetErr error
	// StoreErr is returned by Store when set
	StoreErr error
}

func NewMemoryUsageCache() *MemoryUsageCache {
	return &MemoryUsageCache{rows: make(map[string]usage.DailyUsage)}
}

func (c *MemoryUsageCache) Get(_ context.Context, userID, day string) (*usage.DailyUsage, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.GetErr != nil {
		return nil, c.GetErr
	}
	u, ok := c.rows[usageKey(userID, day)]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &u, nil
}

func (c *MemoryUsageCache) Store(_ context.Context, u *usage.DailyUsage, _ time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.StoreErr != nil {
		return c.StoreErr
	}
	key := usageKey(u.UserID, u.Date)
	if cur, ok := c.rows[key]; ok && cur.TotalSeconds > u.TotalSeconds {
		return nil
	}
	c.rows[key] = *u
	return nil
}

func (c *MemoryUsageCache) Delete(_ context.Context, userID, day string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.rows, usageKey(userID, day))
	return nil
}

// MemoryUserContextStore implements usercontext.Store
type MemoryUserContextStore struct {
	mu   sync.Mutex
	rows map[string]usercontext.UserContext
}

func NewMemoryUserContextStore() *MemoryUserContextStore {
	return &MemoryUserContextStore{rows: make(map[string]usercontext.UserContext)}
}

func (s *MemoryUserContextStore) Save(_ context.Context, uc *usercontext.UserContext, _ time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows[uc.ConversationID] = *uc
	return nil
}

func (s *MemoryUserContextStore) Get(_ context.Context, conversationID string) (*usercontext.UserContext, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	uc, ok := s.rows[conversationID]
	if !ok {
		return nil, errors.ErrNotFound
	}
	return &uc, nil
}

func (s *MemoryUserContextStore) Delete(_ context.Context, conversationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, conversationID)
	return nil
}
