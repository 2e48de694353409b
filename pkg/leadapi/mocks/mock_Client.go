// Package mocks provides test doubles for the leadapi client.
package mocks

import (
	"context"

	model "github.com/sells-group/lead-finder/internal/model"
	mock "github.com/stretchr/testify/mock"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Scrape provides a mock function with given fields: ctx, query
func (_m *MockClient) Scrape(ctx context.Context, query string) ([]model.Lead, error) {
	ret := _m.Called(ctx, query)

	if len(ret) == 0 {
		panic("no return value specified for Scrape")
	}

	var r0 []model.Lead
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) ([]model.Lead, error)); ok {
		return rf(ctx, query)
	}
	if rf, ok := ret.Get(0).(func(context.Context, string) []model.Lead); ok {
		r0 = rf(ctx, query)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]model.Lead)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, string) error); ok {
		r1 = rf(ctx, query)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Process provides a mock function with given fields: ctx, lead
func (_m *MockClient) Process(ctx context.Context, lead model.Lead) (*model.Lead, error) {
	ret := _m.Called(ctx, lead)

	if len(ret) == 0 {
		panic("no return value specified for Process")
	}

	var r0 *model.Lead
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, model.Lead) (*model.Lead, error)); ok {
		return rf(ctx, lead)
	}
	if rf, ok := ret.Get(0).(func(context.Context, model.Lead) *model.Lead); ok {
		r0 = rf(ctx, lead)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.Lead)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, model.Lead) error); ok {
		r1 = rf(ctx, lead)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ExportSheets provides a mock function with given fields: ctx, rows
func (_m *MockClient) ExportSheets(ctx context.Context, rows [][]any) error {
	ret := _m.Called(ctx, rows)

	if len(ret) == 0 {
		panic("no return value specified for ExportSheets")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, [][]any) error); ok {
		r0 = rf(ctx, rows)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// Session provides a mock function with given fields: ctx
func (_m *MockClient) Session(ctx context.Context) (*model.SessionInfo, error) {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Session")
	}

	var r0 *model.SessionInfo
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context) (*model.SessionInfo, error)); ok {
		return rf(ctx)
	}
	if rf, ok := ret.Get(0).(func(context.Context) *model.SessionInfo); ok {
		r0 = rf(ctx)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*model.SessionInfo)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context) error); ok {
		r1 = rf(ctx)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// LoginURL provides a mock function with given fields:
func (_m *MockClient) LoginURL() string {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for LoginURL")
	}

	var r0 string
	if rf, ok := ret.Get(0).(func() string); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(string)
	}

	return r0
}

// Logout provides a mock function with given fields: ctx
func (_m *MockClient) Logout(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Logout")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}
