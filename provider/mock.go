package provider

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockProvider struct {
	mock.Mock
	SlugValue string
	NameValue string
}

func (m *MockProvider) Slug() string {
	return m.SlugValue
}

func (m *MockProvider) Name() string {
	return m.NameValue
}

func (m *MockProvider) CreateUpload(ctx context.Context, corsOrigin string) (*CreateUploadResult, error) {
	args := m.Called(ctx, corsOrigin)
	result, _ := args.Get(0).(*CreateUploadResult)
	return result, args.Error(1)
}

func (m *MockProvider) CheckStatus(ctx context.Context, trackingID string) (*Status, error) {
	args := m.Called(ctx, trackingID)
	status, _ := args.Get(0).(*Status)
	return status, args.Error(1)
}
