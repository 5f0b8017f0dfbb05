// Package mocks provides test doubles for the agent collaborators.
package mocks

import (
	"context"

	model "github.com/sells-group/company-research/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockSearcher is a mock type for the Searcher interface.
type MockSearcher struct {
	mock.Mock
}

// Search provides a mock function with given fields: ctx, query, maxResults
func (_m *MockSearcher) Search(ctx context.Context, query string, maxResults int) ([]model.SearchHit, error) {
	ret := _m.Called(ctx, query, maxResults)

	if len(ret) == 0 {
		panic("no return value specified for Search")
	}

	var r0 []model.SearchHit
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string, int) ([]model.SearchHit, error)); ok {
		return rf(ctx, query, maxResults)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.SearchHit)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// NewMockSearcher creates a new instance of MockSearcher. It also registers a testing interface on the mock and a cleanup function to assert the mocks expectations.
func NewMockSearcher(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockSearcher {
	m := &MockSearcher{}
	m.Mock.Test(t)

	t.Cleanup(func() { m.AssertExpectations(t) })

	return m
}
