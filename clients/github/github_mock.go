package github

import (
	"context"

	"github.com/stretchr/testify/mock"

	gh "github.com/google/go-github/v66/github"
)

type MockAPI struct {
	mock.Mock
}

// Ensure MockAPI implements API
var _ API = (*MockAPI)(nil)

func NewMockAPI() *MockAPI {
	return &MockAPI{}
}

func (m *MockAPI) GetRepository(ctx context.Context, owner, repo string) (*gh.Repository, error) {
	args := m.Called(ctx, owner, repo)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*gh.Repository), args.Error(1)
}

func (m *MockAPI) ListRepositoriesByOrg(ctx context.Context, org string) ([]*gh.Repository, error) {
	args := m.Called(ctx, org)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*gh.Repository), args.Error(1)
}

func (m *MockAPI) AddCollaborator(ctx context.Context, owner, repo, username, permission string) error {
	args := m.Called(ctx, owner, repo, username, permission)
	return args.Error(0)
}

func (m *MockAPI) CreateOrUpdateSecret(ctx context.Context, owner, repo string, secret *gh.EncryptedSecret) error {
	args := m.Called(ctx, owner, repo, secret)
	return args.Error(0)
}
