package services

import (
	"context"
	"errors"
	"sync"

	repoerrors "odometer/internal/infrastructure/errors"
	"odometer/internal/repository"
)

// MockRepository wraps a real repository and can simulate write failures
type MockRepository struct {
	repository.StatsRepository

	mu             sync.Mutex
	writeCalls     int
	shouldFailTx   bool
	failedWriteOps []string
}

// NewMockRepository wraps repo
func NewMockRepository(repo repository.StatsRepository) *MockRepository {
	return &MockRepository{StatsRepository: repo}
}

// SetFailureModes configures the mock to fail every write transaction
func (m *MockRepository) SetFailureModes(tx bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shouldFailTx = tx
}

// GetCallCounts returns the number of write transactions attempted
func (m *MockRepository) GetCallCounts() (writes int, failed []string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.writeCalls, append([]string(nil), m.failedWriteOps...)
}

// WithWriteTx implements StatsRepository
func (m *MockRepository) WithWriteTx(ctx context.Context, op string, fn repository.WriteFunc) error {
	m.mu.Lock()
	m.writeCalls++
	fail := m.shouldFailTx
	if fail {
		m.failedWriteOps = append(m.failedWriteOps, op)
	}
	m.mu.Unlock()

	if fail {
		return repoerrors.NewWriteError(op, errors.New("mock disk I/O error"), map[string]string{"phase": "commit"})
	}
	return m.StatsRepository.WithWriteTx(ctx, op, fn)
}
