// Package mocks provides testify mocks for the browser port and report sink.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/carservice/autotest/internal/browser"
)

// Element is a named handle for use with MockPort.
type Element string

func (e Element) Ref() string { return string(e) }

// -- Port Mock --

// MockPort mocks browser.Port.
type MockPort struct {
	mock.Mock
}

var _ browser.Port = (*MockPort)(nil)

func (m *MockPort) FindAll(ctx context.Context, xpath string) ([]browser.Element, error) {
	args := m.Called(ctx, xpath)
	els, _ := args.Get(0).([]browser.Element)
	return els, args.Error(1)
}

func (m *MockPort) FindWithin(ctx context.Context, parent browser.Element, xpath string) ([]browser.Element, error) {
	args := m.Called(ctx, parent, xpath)
	els, _ := args.Get(0).([]browser.Element)
	return els, args.Error(1)
}

func (m *MockPort) Attribute(ctx context.Context, el browser.Element, name string) (string, bool, error) {
	args := m.Called(ctx, el, name)
	return args.String(0), args.Bool(1), args.Error(2)
}

func (m *MockPort) Text(ctx context.Context, el browser.Element) (string, error) {
	args := m.Called(ctx, el)
	return args.String(0), args.Error(1)
}

func (m *MockPort) IsDisplayed(ctx context.Context, el browser.Element) (bool, error) {
	args := m.Called(ctx, el)
	return args.Bool(0), args.Error(1)
}

func (m *MockPort) IsEnabled(ctx context.Context, el browser.Element) (bool, error) {
	args := m.Called(ctx, el)
	return args.Bool(0), args.Error(1)
}

func (m *MockPort) Value(ctx context.Context, el browser.Element) (string, error) {
	args := m.Called(ctx, el)
	return args.String(0), args.Error(1)
}

func (m *MockPort) IsChecked(ctx context.Context, el browser.Element) (bool, error) {
	args := m.Called(ctx, el)
	return args.Bool(0), args.Error(1)
}

func (m *MockPort) Click(ctx context.Context, el browser.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPort) Clear(ctx context.Context, el browser.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPort) Type(ctx context.Context, el browser.Element, text string) error {
	return m.Called(ctx, el, text).Error(0)
}

func (m *MockPort) ScrollIntoView(ctx context.Context, el browser.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPort) ScrollBy(ctx context.Context, dy int) error {
	return m.Called(ctx, dy).Error(0)
}

// CallOn records the elements as a single slice argument.
func (m *MockPort) CallOn(ctx context.Context, fn string, els ...browser.Element) error {
	return m.Called(ctx, fn, els).Error(0)
}

func (m *MockPort) Evaluate(ctx context.Context, expr string, out any) error {
	return m.Called(ctx, expr, out).Error(0)
}

func (m *MockPort) Drag(ctx context.Context, src, dst browser.Element) error {
	return m.Called(ctx, src, dst).Error(0)
}

func (m *MockPort) PointerDown(ctx context.Context, el browser.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPort) PointerMoveTo(ctx context.Context, el browser.Element) error {
	return m.Called(ctx, el).Error(0)
}

func (m *MockPort) PointerUp(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func (m *MockPort) Navigate(ctx context.Context, url string) error {
	return m.Called(ctx, url).Error(0)
}

func (m *MockPort) CurrentURL(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPort) Title(ctx context.Context) (string, error) {
	args := m.Called(ctx)
	return args.String(0), args.Error(1)
}

func (m *MockPort) Screenshot(ctx context.Context) ([]byte, error) {
	args := m.Called(ctx)
	b, _ := args.Get(0).([]byte)
	return b, args.Error(1)
}

// Elements builds a []browser.Element from names, for Return(...).
func Elements(names ...string) []browser.Element {
	out := make([]browser.Element, len(names))
	for i, n := range names {
		out[i] = Element(n)
	}
	return out
}
