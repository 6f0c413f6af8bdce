package auth

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/hitoshi/memoria/internal/model"
	"github.com/hitoshi/memoria/internal/repository"
)

// memUserRepo はupstream_subject_idの一意制約を守るインメモリのUserRepository。
type memUserRepo struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*model.User

	// テストから障害や競合を差し込むためのフック
	findErr      error
	createErr    error
	updateErr    error
	beforeCreate func(u *model.User)
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{rows: make(map[int64]*model.User)}
}

func (r *memUserRepo) FindByID(_ context.Context, id int64) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	if u, ok := r.rows[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (r *memUserRepo) FindByUpstreamSubjectID(_ context.Context, subjectID string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	for _, u := range r.rows {
		if u.UpstreamSubjectID == subjectID {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *memUserRepo) Create(_ context.Context, user *model.User) error {
	if r.beforeCreate != nil {
		r.beforeCreate(user)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	for _, u := range r.rows {
		if u.UpstreamSubjectID == user.UpstreamSubjectID {
			return repository.ErrDuplicateSubject
		}
	}
	r.nextID++
	now := time.Now()
	user.ID = r.nextID
	user.CreatedAt = now
	user.UpdatedAt = now
	cp := *user
	r.rows[user.ID] = &cp
	return nil
}

func (r *memUserRepo) UpdateProfile(_ context.Context, user *model.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.updateErr != nil {
		return r.updateErr
	}
	row, ok := r.rows[user.ID]
	if !ok {
		return errors.New("user not found")
	}
	row.DisplayName = user.DisplayName
	row.Email = user.Email
	row.PhotoURL = user.PhotoURL
	row.UpdatedAt = time.Now()
	return nil
}

func (r *memUserRepo) UpdateDisplayName(_ context.Context, id int64, name string) (*model.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	row, ok := r.rows[id]
	if !ok {
		return nil, nil
	}
	row.DisplayName = name
	cp := *row
	return &cp, nil
}

func (r *memUserRepo) DeleteByID(_ context.Context, id int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *memUserRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// memSessionRepo はインメモリのSessionRepository。
type memSessionRepo struct {
	mu        sync.Mutex
	rows      map[string]*model.Session
	createErr error
	findErr   error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{rows: make(map[string]*model.Session)}
}

func (r *memSessionRepo) Create(_ context.Context, s *model.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.createErr != nil {
		return r.createErr
	}
	cp := *s
	r.rows[s.ID] = &cp
	return nil
}

func (r *memSessionRepo) FindByID(_ context.Context, id string) (*model.Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return nil, r.findErr
	}
	if s, ok := r.rows[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, nil
}

func (r *memSessionRepo) DeleteByID(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.rows, id)
	return nil
}

func (r *memSessionRepo) DeleteByUserID(_ context.Context, userID int64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, s := range r.rows {
		if s.UserID == userID {
			delete(r.rows, id)
		}
	}
	return nil
}

func (r *memSessionRepo) DeleteExpired(_ context.Context, before time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var n int64
	for id, s := range r.rows {
		if !s.ExpiresAt.After(before) {
			delete(r.rows, id)
			n++
		}
	}
	return n, nil
}

func (r *memSessionRepo) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

// mockProvider は関数フィールドで振る舞いを差し替えるIdentityProvider。
type mockProvider struct {
	authCodeURLFn func(state string) string
	exchangeFn    func(ctx context.Context, credential string) (*UpstreamProfile, error)
}

func (m *mockProvider) AuthCodeURL(state string) string {
	if m.authCodeURLFn != nil {
		return m.authCodeURLFn(state)
	}
	return ""
}

func (m *mockProvider) Exchange(ctx context.Context, credential string) (*UpstreamProfile, error) {
	if m.exchangeFn != nil {
		return m.exchangeFn(ctx, credential)
	}
	return nil, nil
}

// --- compile-time interface checks ---
var (
	_ repository.UserRepository    = (*memUserRepo)(nil)
	_ repository.SessionRepository = (*memSessionRepo)(nil)
	_ IdentityProvider             = (*mockProvider)(nil)
)

const testSecret = "0123456789abcdef0123456789abcdef"
