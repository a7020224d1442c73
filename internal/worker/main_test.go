package worker

import (
	"testing"

	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	// the worker loop must not outlive its context
	goleak.VerifyTestMain(m)
}
