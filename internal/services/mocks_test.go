package services

import (
	"context"

	"github.com/stretchr/testify/mock"
)

type MockOtpSender struct {
	mock.Mock
}

func (m *MockOtpSender) Send(ctx context.Context, email, code string) error {
	args := m.Called(ctx, email, code)
	return args.Error(0)
}

// recordingSender captures delivered codes so flow tests can replay them.
type recordingSender struct {
	codes []string
	err   error
}

func (s *recordingSender) Send(_ context.Context, _, code string) error {
	if s.err != nil {
		return s.err
	}
	s.codes = append(s.codes, code)
	return nil
}

func (s *recordingSender) lastCode() string {
	if len(s.codes) == 0 {
		return ""
	}
	return s.codes[len(s.codes)-1]
}
