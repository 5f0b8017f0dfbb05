package mocks

import (
	"context"
	"time"

	model "github.com/sells-group/company-research/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockFetcher is a mock type for the Fetcher interface.
type MockFetcher struct {
	mock.Mock
}

// Fetch provides a mock function with given fields: ctx, url, timeout
func (_m *MockFetcher) Fetch(ctx context.Context, url string, timeout time.Duration) (*model.CrawledPage, error) {
	ret := _m.Called(ctx, url, timeout)

	if len(ret) == 0 {
		panic("no return value specified for Fetch")
	}

	var r0 *model.CrawledPage
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, time.Duration) (*model.CrawledPage, error)); ok {
		return rf(ctx, url, timeout)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.CrawledPage)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockFetcher creates a new instance of MockFetcher. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockFetcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockFetcher {
	m := &MockFetcher{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
