// Package testutils holds helpers shared by package tests.
package testutils

import (
	"os"
	"testing"

	"github.com/sirupsen/logrus"
)

type TestHelper struct {
	T      *testing.T
	Logger *logrus.Logger
}

// NewTestHelper creates a test helper. Set BEACON_TEST_DEBUG to see logs.
func NewTestHelper(t *testing.T) *TestHelper {
	return &TestHelper{
		T:      t,
		Logger: NewLogger(),
	}
}

// NewLogger returns a logger that stays silent unless BEACON_TEST_DEBUG is set.
func NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	if debugEnabled() {
		logger.SetLevel(logrus.DebugLevel) // enable debug logs to track execution flow
	}
	return logger
}

func debugEnabled() bool {
	return os.Getenv("BEACON_TEST_DEBUG") != ""
}
