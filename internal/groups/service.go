// Package groups is the boundary to the external group-management
// collaborator. The signaling layer only ever asks "which groups does this
// user belong to" at connection time.
package groups

import (
	"context"
	"sync"

	"github.com/quickchat/signaling/internal/domain"
)

// Service is implemented by the group-management collaborator. Lookups are
// allowed to fail; the caller degrades to zero auto-joined scopes.
type Service interface {
	GroupsOf(ctx context.Context, uid domain.UserID) ([]domain.GroupID, error)
}

// StaticService is an in-memory Service used by the dev server and tests.
type StaticService struct {
	mu     sync.RWMutex
	byUser map[domain.UserID][]domain.GroupID
}

func NewStaticService() *StaticService {
	return &StaticService{byUser: make(map[domain.UserID][]domain.GroupID)}
}

func (s *StaticService) Set(uid domain.UserID, gids ...domain.GroupID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.byUser[uid] = append([]domain.GroupID(nil), gids...)
}

func (s *StaticService) GroupsOf(_ context.Context, uid domain.UserID) ([]domain.GroupID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]domain.GroupID(nil), s.byUser[uid]...), nil
}
