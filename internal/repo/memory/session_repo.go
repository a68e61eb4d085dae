package memory

import (
	"sync"

	"github.com/ariellien/intervu-backend/internal/core/interview"
)

// SessionRepo holds the live (not yet ended) interview sessions.
type SessionRepo struct {
	m sync.Map
}

func NewSessionRepo() *SessionRepo {
	return &SessionRepo{}
}

func (r *SessionRepo) Save(s *interview.Session) {
	r.m.Store(s.ID(), s)
}

func (r *SessionRepo) Get(id string) (*interview.Session, bool) {
	v, ok := r.m.Load(id)
	if !ok {
		return nil, false
	}
	return v.(*interview.Session), true
}

func (r *SessionRepo) Remove(id string) {
	r.m.Delete(id)
}

// Each calls fn for every live session, used for shutdown teardown.
func (r *SessionRepo) Each(fn func(*interview.Session)) {
	r.m.Range(func(_, v any) bool {
		fn(v.(*interview.Session))
		return true
	})
}
