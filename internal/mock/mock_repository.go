package mock

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/hpc-analysis/internal/repository"
)

// MockRunRepository is a mock implementation of repository.RunRepository.
type MockRunRepository struct {
	mock.Mock
}

var _ repository.RunRepository = (*MockRunRepository)(nil)

// SaveRun mocks the SaveRun method.
func (m *MockRunRepository) SaveRun(ctx context.Context, run *repository.ProfileRun, rows []repository.ProfileRow) error {
	return m.Called(ctx, run, rows).Error(0)
}

// GetRun mocks the GetRun method.
func (m *MockRunRepository) GetRun(ctx context.Context, runUUID string) (*repository.ProfileRun, error) {
	args := m.Called(ctx, runUUID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*repository.ProfileRun), args.Error(1)
}

// ListRuns mocks the ListRuns method.
func (m *MockRunRepository) ListRuns(ctx context.Context, limit, offset int) ([]*repository.ProfileRun, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*repository.ProfileRun), args.Error(1)
}

// GetRows mocks the GetRows method.
func (m *MockRunRepository) GetRows(ctx context.Context, runUUID string, minDepth, maxDepth *int) ([]repository.ProfileRow, error) {
	args := m.Called(ctx, runUUID, minDepth, maxDepth)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]repository.ProfileRow), args.Error(1)
}

// DeleteRun mocks the DeleteRun method.
func (m *MockRunRepository) DeleteRun(ctx context.Context, runUUID string) error {
	return m.Called(ctx, runUUID).Error(0)
}

// ExpectSaveRun sets up an expectation for any SaveRun.
func (m *MockRunRepository) ExpectSaveRun(err error) *mock.Call {
	return m.On("SaveRun", mock.Anything, mock.Anything, mock.Anything).Return(err)
}

// ExpectListRuns sets up an expectation for ListRuns with any paging.
func (m *MockRunRepository) ExpectListRuns(runs []*repository.ProfileRun, err error) *mock.Call {
	return m.On("ListRuns", mock.Anything, mock.Anything, mock.Anything).Return(runs, err)
}

// ExpectGetRun sets up an expectation for GetRun.
func (m *MockRunRepository) ExpectGetRun(runUUID string, run *repository.ProfileRun, err error) *mock.Call {
	return m.On("GetRun", mock.Anything, runUUID).Return(run, err)
}

// ExpectDeleteRun sets up an expectation for DeleteRun.
func (m *MockRunRepository) ExpectDeleteRun(runUUID string, err error) *mock.Call {
	return m.On("DeleteRun", mock.Anything, runUUID).Return(err)
}
