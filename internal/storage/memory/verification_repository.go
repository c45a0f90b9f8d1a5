package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/vladislavdragonenkov/creditmarket/internal/domain"
)

type verificationRepositoryInMemory struct {
	mu    sync.RWMutex
	items map[string]domain.VerificationRequest
}

// NewVerificationRepository создаёт in-memory хранилище заявок на проверку.
func NewVerificationRepository() domain.VerificationRepository {
	return &verificationRepositoryInMemory{items: make(map[string]domain.VerificationRequest)}
}

func (r *verificationRepositoryInMemory) Create(_ context.Context, v domain.VerificationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.items[v.ID]; exists {
		return domain.ErrAlreadyExists
	}
	r.items[v.ID] = cloneVerification(v)
	return nil
}

func (r *verificationRepositoryInMemory) Get(_ context.Context, id string) (domain.VerificationRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	v, ok := r.items[id]
	if !ok {
		return domain.VerificationRequest{}, domain.ErrVerificationNotFound
	}
	return cloneVerification(v), nil
}

func (r *verificationRepositoryInMemory) Save(_ context.Context, v domain.VerificationRequest) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.items[v.ID]; !ok {
		return domain.ErrVerificationNotFound
	}
	r.items[v.ID] = cloneVerification(v)
	return nil
}

// List возвращает заявки в порядке подачи; пустой status — все заявки.
func (r *verificationRepositoryInMemory) List(_ context.Context, status domain.ApprovalStatus) ([]domain.VerificationRequest, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	result := make([]domain.VerificationRequest, 0)
	for _, v := range r.items {
		if status == "" || v.Status == status {
			result = append(result, cloneVerification(v))
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].SubmittedAt.Before(result[j].SubmittedAt) })
	return result, nil
}

func cloneVerification(src domain.VerificationRequest) domain.VerificationRequest {
	dst := src
	dst.Documents = append([]string(nil), src.Documents...)
	return dst
}

var _ domain.VerificationRepository = (*verificationRepositoryInMemory)(nil)
