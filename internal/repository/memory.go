package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/iliyamo/gym-roster/internal/keylock"
	"github.com/iliyamo/gym-roster/internal/model"
)

type pairKey struct{ userID, activityID uint64 }

// MemoryStore is a process-local Store used for development and tests.
// Activity scopes are serialized per id with a keylock.Table; the map
// itself is guarded by mu.
type MemoryStore struct {
	mu          sync.RWMutex
	activities  map[uint64]model.Activity
	enrollments map[uint64]model.Enrollment
	byActivity  map[uint64]map[uint64]struct{}
	byPair      map[pairKey]uint64

	nextActivity   uint64
	nextEnrollment uint64

	locks *keylock.Table
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		activities:  make(map[uint64]model.Activity),
		enrollments: make(map[uint64]model.Enrollment),
		byActivity:  make(map[uint64]map[uint64]struct{}),
		byPair:      make(map[pairKey]uint64),
		locks:       keylock.New(),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) InsertActivity(_ context.Context, spec model.ActivitySpec) (*model.Activity, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextActivity++
	now := s.now()
	a := activityFromSpec(spec)
	a.ID = s.nextActivity
	a.CreatedAt, a.UpdatedAt = now, now
	s.activities[a.ID] = a
	return &a, nil
}

func (s *MemoryStore) GetActivity(_ context.Context, id uint64) (*model.Activity, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.activities[id]
	if !ok {
		return nil, ErrNotFound
	}
	a.Enrolled = len(s.byActivity[id])
	return &a, nil
}

func (s *MemoryStore) ListActivities(_ context.Context, f model.ActivityFilter) ([]model.Activity, error) {
	s.mu.RLock()
	out := make([]model.Activity, 0, len(s.activities))
	for id, a := range s.activities {
		if !f.Matches(a) {
			continue
		}
		a.Enrolled = len(s.byActivity[id])
		out = append(out, a)
	}
	s.mu.RUnlock()
	model.SortActivities(out, f.Sort)
	return out, nil
}

func (s *MemoryStore) GetEnrollment(_ context.Context, id uint64) (*model.Enrollment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.enrollments[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &e, nil
}

func (s *MemoryStore) ListEnrollmentsByUser(_ context.Context, userID uint64) ([]model.EnrollmentDetail, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.EnrollmentDetail
	for _, e := range s.enrollments {
		if e.UserID != userID {
			continue
		}
		d := model.EnrollmentDetail{Enrollment: e}
		if a, ok := s.activities[e.ActivityID]; ok {
			a.Enrolled = len(s.byActivity[a.ID])
			d.Activity = &a
		} else {
			d.ActivityMissing = true
		}
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) InActivityScope(ctx context.Context, activityID uint64, fn ScopeFunc) error {
	unlock, err := s.locks.Lock(ctx, activityID)
	if err != nil {
		return classify(err)
	}
	defer unlock()

	s.mu.RLock()
	a, ok := s.activities[activityID]
	a.Enrolled = len(s.byActivity[activityID])
	s.mu.RUnlock()
	if !ok {
		return ErrNotFound
	}

	tx := &memoryScope{s: s, activityID: activityID}
	if err := fn(ctx, tx, &a); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// memoryScope applies writes immediately and keeps undo steps so a failed
// scope leaves the store as it found it.
type memoryScope struct {
	s          *MemoryStore
	activityID uint64
	undo       []func()
}

func (t *memoryScope) rollback() {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	for i := len(t.undo) - 1; i >= 0; i-- {
		t.undo[i]()
	}
	t.undo = nil
}

func (t *memoryScope) CountEnrollments(context.Context) (int, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	return len(t.s.byActivity[t.activityID]), nil
}

func (t *memoryScope) FindEnrollment(_ context.Context, userID uint64) (*model.Enrollment, error) {
	t.s.mu.RLock()
	defer t.s.mu.RUnlock()
	id, ok := t.s.byPair[pairKey{userID, t.activityID}]
	if !ok {
		return nil, ErrNotFound
	}
	e := t.s.enrollments[id]
	return &e, nil
}

func (t *memoryScope) InsertEnrollment(_ context.Context, userID uint64) (*model.Enrollment, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	key := pairKey{userID, t.activityID}
	if _, dup := s.byPair[key]; dup {
		return nil, ErrAlreadyEnrolled
	}
	s.nextEnrollment++
	e := model.Enrollment{ID: s.nextEnrollment, UserID: userID, ActivityID: t.activityID, CreatedAt: s.now()}
	s.putEnrollment(e)
	t.undo = append(t.undo, func() { s.removeEnrollment(e) })
	return &e, nil
}

func (t *memoryScope) DeleteEnrollment(_ context.Context, enrollmentID uint64) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.enrollments[enrollmentID]
	if !ok || e.ActivityID != t.activityID {
		return ErrNotFound
	}
	s.removeEnrollment(e)
	t.undo = append(t.undo, func() { s.putEnrollment(e) })
	return nil
}

func (t *memoryScope) DeleteAllEnrollments(context.Context) (int, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := make([]model.Enrollment, 0, len(s.byActivity[t.activityID]))
	for id := range s.byActivity[t.activityID] {
		removed = append(removed, s.enrollments[id])
	}
	for _, e := range removed {
		s.removeEnrollment(e)
	}
	t.undo = append(t.undo, func() {
		for _, e := range removed {
			s.putEnrollment(e)
		}
	})
	return len(removed), nil
}

func (t *memoryScope) UpdateActivity(_ context.Context, spec model.ActivitySpec) (*model.Activity, error) {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.activities[t.activityID]
	if !ok {
		return nil, ErrNotFound
	}
	next := activityFromSpec(spec)
	next.ID, next.CreatedAt, next.UpdatedAt = prev.ID, prev.CreatedAt, s.now()
	s.activities[t.activityID] = next
	t.undo = append(t.undo, func() { s.activities[prev.ID] = prev })
	next.Enrolled = len(s.byActivity[t.activityID])
	return &next, nil
}

func (t *memoryScope) DeleteActivity(context.Context) error {
	s := t.s
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.activities[t.activityID]
	if !ok {
		return ErrNotFound
	}
	delete(s.activities, t.activityID)
	t.undo = append(t.undo, func() { s.activities[prev.ID] = prev })
	return nil
}

// putEnrollment and removeEnrollment require s.mu held for writing.
func (s *MemoryStore) putEnrollment(e model.Enrollment) {
	s.enrollments[e.ID] = e
	set, ok := s.byActivity[e.ActivityID]
	if !ok {
		set = make(map[uint64]struct{})
		s.byActivity[e.ActivityID] = set
	}
	set[e.ID] = struct{}{}
	s.byPair[pairKey{e.UserID, e.ActivityID}] = e.ID
}

func (s *MemoryStore) removeEnrollment(e model.Enrollment) {
	delete(s.enrollments, e.ID)
	if set, ok := s.byActivity[e.ActivityID]; ok {
		delete(set, e.ID)
		if len(set) == 0 {
			delete(s.byActivity, e.ActivityID)
		}
	}
	delete(s.byPair, pairKey{e.UserID, e.ActivityID})
}

func activityFromSpec(spec model.ActivitySpec) model.Activity {
	return model.Activity{
		Title:           spec.Title,
		Category:        spec.Category,
		Description:     spec.Description,
		Day:             spec.Day,
		StartTime:       spec.StartTime,
		DurationMinutes: spec.DurationMinutes,
		MaxCapacity:     spec.MaxCapacity,
		Instructor:      spec.Instructor,
		PhotoURL:        spec.PhotoURL,
	}
}

// MemoryUserRepo is the in-memory UserStore.
type MemoryUserRepo struct {
	mu      sync.RWMutex
	byID    map[uint64]model.User
	byEmail map[string]uint64
	next    uint64
}

func NewMemoryUserRepo() *MemoryUserRepo {
	return &MemoryUserRepo{byID: make(map[uint64]model.User), byEmail: make(map[string]uint64)}
}

func (r *MemoryUserRepo) CreateUser(_ context.Context, u *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	email := normalizeEmail(u.Email)
	if _, ok := r.byEmail[email]; ok {
		return ErrEmailExists
	}
	r.next++
	now := time.Now().UTC()
	u.ID, u.Email, u.CreatedAt, u.UpdatedAt = r.next, email, now, now
	r.byID[u.ID] = *u
	r.byEmail[email] = u.ID
	return nil
}

func (r *MemoryUserRepo) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	id, ok := r.byEmail[normalizeEmail(email)]
	if !ok {
		return nil, ErrNotFound
	}
	u := r.byID[id]
	return &u, nil
}

func (r *MemoryUserRepo) GetUserByID(_ context.Context, id uint64) (*model.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

// MemoryTokenRepo is the in-memory TokenStore.
type MemoryTokenRepo struct {
	mu     sync.Mutex
	tokens map[string]model.RefreshToken
}

func NewMemoryTokenRepo() *MemoryTokenRepo {
	return &MemoryTokenRepo{tokens: make(map[string]model.RefreshToken)}
}

func (r *MemoryTokenRepo) StoreRefresh(_ context.Context, userID uint64, tokenHash string, exp time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tokens[tokenHash] = model.RefreshToken{UserID: userID, TokenHash: tokenHash, ExpiresAt: exp, CreatedAt: time.Now().UTC()}
	return nil
}

func (r *MemoryTokenRepo) ValidateRefresh(_ context.Context, tokenHash string) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenHash]
	if !ok || t.RevokedAt != nil || time.Now().UTC().After(t.ExpiresAt) {
		return 0, ErrNotFound
	}
	return t.UserID, nil
}

func (r *MemoryTokenRepo) RevokeByHash(_ context.Context, tokenHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tokens[tokenHash]
	if !ok || t.RevokedAt != nil {
		return ErrNotFound
	}
	now := time.Now().UTC()
	t.RevokedAt = &now
	r.tokens[tokenHash] = t
	return nil
}

func (r *MemoryTokenRepo) RevokeAllForUser(_ context.Context, userID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	for h, t := range r.tokens {
		if t.UserID == userID && t.RevokedAt == nil {
			t.RevokedAt = &now
			r.tokens[h] = t
		}
	}
	return nil
}
