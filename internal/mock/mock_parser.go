// Package mock provides testify mocks of the analysis interfaces.
package mock

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/hpc-analysis/internal/parser"
	"github.com/hpc-analysis/pkg/model"
)

// MockParser stands in for an experiment database decoder.
type MockParser struct {
	mock.Mock
}

var _ parser.Parser = (*MockParser)(nil)

func (m *MockParser) Parse(ctx context.Context, reader io.Reader) (*model.Experiment, error) {
	args := m.Called(ctx, reader)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Experiment), args.Error(1)
}

func (m *MockParser) SupportedFormats() []string {
	args := m.Called()
	return args.Get(0).([]string)
}

func (m *MockParser) Name() string {
	return m.Called().String(0)
}

// ExpectParse makes Parse return exp and err for any input, and Name
// report "mock".
func (m *MockParser) ExpectParse(exp *model.Experiment, err error) *mock.Call {
	m.On("Name").Return("mock").Maybe()
	return m.On("Parse", mock.Anything, mock.Anything).Return(exp, err)
}
