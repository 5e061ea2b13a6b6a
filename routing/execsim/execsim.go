// Package execsim provides a mock StepExecutor, the kind §6 explicitly
// allows for tests and local runs ("a mock returning a random hash and a
// ~2s delay is acceptable for tests"). A production deployment replaces
// this with a real OTC/DEX settlement client.
package execsim

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"math/big"
	"time"

	"github.com/plm/liquidity-mesh-router/routing/model"
)

// MockExecutor completes every step after a short simulated delay and a
// small, configurable failure rate, returning a random hex string as the
// settlement transaction hash.
type MockExecutor struct {
	Delay       time.Duration
	FailureRate float64 // in [0, 1]; 0 disables simulated failures, 1 fails every step
}

// NewMockExecutor builds a mock executor with a ~2s settlement delay and no
// simulated failures.
func NewMockExecutor() *MockExecutor {
	return &MockExecutor{Delay: 2 * time.Second, FailureRate: 0}
}

// Execute waits out the simulated delay, then returns a random tx hash.
func (m *MockExecutor) Execute(ctx context.Context, step model.Step) (string, error) {
	select {
	case <-time.After(m.Delay):
	case <-ctx.Done():
		return "", ctx.Err()
	}

	if m.FailureRate > 0 && randFloat() < m.FailureRate {
		return "", errStepFailed(step)
	}

	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return "0x" + hex.EncodeToString(buf), nil
}

func randFloat() float64 {
	n, err := rand.Int(rand.Reader, big.NewInt(1_000_000))
	if err != nil {
		return 0
	}
	return float64(n.Int64()) / 1_000_000
}

type stepFailedError struct {
	venue string
}

func (e *stepFailedError) Error() string {
	return "simulated settlement failure at venue " + e.venue
}

func errStepFailed(step model.Step) error {
	return &stepFailedError{venue: step.VenueID}
}
