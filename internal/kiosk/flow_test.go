package kiosk

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kioskgw/internal/encounter"
	"kioskgw/pkg/testutil"
)

// Walks one participant through a full testing cycle across several study
// days, replaying the encounter history the store would accumulate.
func TestCheckInCycleScenario(t *testing.T) {
	testutil.Given(t, "an enrolled participant with an empty week", func(t *testing.T) {
		dir := &fakeDirectory{record: enrolled()}
		svc, _, stop := newTestService(t, dir)
		defer stop()
		ctx := context.Background()

		var firstInstance int
		testutil.When(t, "they first check in", func(t *testing.T) {
			result, err := svc.CheckIn(ctx, "jdoe")
			require.NoError(t, err)
			assert.Equal(t, OutcomeDestination, result.Outcome)
			assert.Equal(t, 1, dir.created)
			firstInstance = result.Instance
		})

		testutil.Then(t, "a repeat check-in resumes their started registration", func(t *testing.T) {
			dir.events = []encounter.Event{
				{Instance: firstInstance, TestingTriggered: true,
					DeterminationStatus: encounter.StatusComplete,
					RegistrationStatus:  encounter.StatusIncomplete},
			}
			result, err := svc.CheckIn(ctx, "jdoe")
			require.NoError(t, err)
			assert.Equal(t, OutcomeDestination, result.Outcome)
			assert.Equal(t, firstInstance, result.Instance)
			assert.Equal(t, 1, dir.created)
		})

		testutil.Then(t, "a completed order blocks a same-day retest", func(t *testing.T) {
			dir.events = []encounter.Event{
				{Instance: firstInstance, TestingTriggered: true,
					DeterminationStatus: encounter.StatusComplete,
					RegistrationStatus:  encounter.StatusComplete},
				{Instance: firstInstance, OrderStatus: encounter.StatusComplete},
			}
			result, err := svc.CheckIn(ctx, "jdoe")
			require.NoError(t, err)
			assert.Equal(t, OutcomeAlreadyTested, result.Outcome)
		})
	})
}
