package reconciler

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/stretchr/testify/assert"
	"github.com/tilinna/clock"

	"github.com/clusterpeers/ecspeers"
	"github.com/clusterpeers/ecspeers/internal/fixtures"
	"github.com/clusterpeers/ecspeers/internal/util"
)

func noRetries() util.BackoffFactory {
	return func() backoff.BackOff { return &backoff.StopBackOff{} }
}

func TestTrackerConnectsNewNodesOnce(t *testing.T) {
	t.Parallel()

	clck := clock.NewMock(time.Unix(10, 0))
	ctx := clock.Context(context.Background(), clck)

	var dialed []ecspeers.Node
	tracker := NewTracker(fixtures.NewTestLogger(t), func(node ecspeers.Node) error {
		dialed = append(dialed, node)
		return nil
	}, 10*time.Second, noRetries())

	tracker.Connect(ctx, []ecspeers.Node{"my-app@10.0.1.5", "my-app@10.0.1.6"})
	assert.Equal(t, []ecspeers.Node{"my-app@10.0.1.5", "my-app@10.0.1.6"}, dialed)
	assert.Equal(t, []ecspeers.Node{"my-app@10.0.1.5", "my-app@10.0.1.6"}, tracker.List())

	// Republishing the same set must not reconnect.
	tracker.Connect(ctx, []ecspeers.Node{"my-app@10.0.1.5", "my-app@10.0.1.6"})
	assert.Len(t, dialed, 2)
}

func TestTrackerExpiresUnpublishedNodes(t *testing.T) {
	t.Parallel()

	clck := clock.NewMock(time.Unix(10, 0))
	ctx := clock.Context(context.Background(), clck)

	tracker := NewTracker(fixtures.NewTestLogger(t), func(ecspeers.Node) error { return nil }, 2*time.Second, noRetries())

	tracker.Connect(ctx, []ecspeers.Node{"my-app@10.0.1.5", "my-app@10.0.1.6"})

	// One poll without 10.0.1.6, inside the expiry window: still tracked.
	clck.Add(1 * time.Second)
	tracker.Connect(ctx, []ecspeers.Node{"my-app@10.0.1.5"})
	assert.Equal(t, []ecspeers.Node{"my-app@10.0.1.5", "my-app@10.0.1.6"}, tracker.List())

	// Past the expiry window it is dropped.
	clck.Add(3 * time.Second)
	tracker.Connect(ctx, []ecspeers.Node{"my-app@10.0.1.5"})
	assert.Equal(t, []ecspeers.Node{"my-app@10.0.1.5"}, tracker.List())
}

func TestTrackerRetriesFailedConnectOnNextPoll(t *testing.T) {
	t.Parallel()

	clck := clock.NewMock(time.Unix(10, 0))
	ctx := clock.Context(context.Background(), clck)

	attempts := 0
	tracker := NewTracker(fixtures.NewTestLogger(t), func(node ecspeers.Node) error {
		attempts++
		if attempts == 1 {
			return errors.New("connection refused")
		}
		return nil
	}, 10*time.Second, noRetries())

	tracker.Connect(ctx, []ecspeers.Node{"my-app@10.0.1.5"})
	assert.Empty(t, tracker.List())

	tracker.Connect(ctx, []ecspeers.Node{"my-app@10.0.1.5"})
	assert.Equal(t, []ecspeers.Node{"my-app@10.0.1.5"}, tracker.List())
	assert.Equal(t, 2, attempts)
}

func TestTrackerListDoesNotBlockDuringConnect(t *testing.T) {
	t.Parallel()

	clck := clock.NewMock(time.Unix(10, 0))
	ctx := clock.Context(context.Background(), clck)

	dialing := make(chan struct{})
	release := make(chan struct{})
	tracker := NewTracker(fixtures.NewTestLogger(t), func(ecspeers.Node) error {
		close(dialing)
		<-release
		return nil
	}, 10*time.Second, noRetries())

	done := make(chan struct{})
	go func() {
		defer close(done)
		tracker.Connect(ctx, []ecspeers.Node{"my-app@10.0.1.5"})
	}()

	// While the connect is in flight the tracker must stay responsive.
	<-dialing
	assert.Empty(t, tracker.List())

	close(release)
	<-done
	assert.Equal(t, []ecspeers.Node{"my-app@10.0.1.5"}, tracker.List())
}
