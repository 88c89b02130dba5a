package reconciler

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ash2k/stager/wait"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/clusterpeers/ecspeers"
	"github.com/clusterpeers/ecspeers/internal/fixtures"
)

func expectMessage(t *testing.T, ctx context.Context, ch <-chan *redis.Message, expected string) {
	select {
	case msg := <-ch:
		assert.Equal(t, expected, msg.Payload)
	case <-ctx.Done():
		require.FailNow(t, "timed out waiting for message", "expected %q", expected)
	}
}

func TestRedisFanoutAnnouncesMembership(t *testing.T) {
	t.Parallel()

	ctxTest, cancelTest := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTest()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		DB:   0,
	})

	sub := redisClient.Subscribe(ctxTest, "ns")
	defer sub.Close()
	_, err = sub.Receive(ctxTest)
	require.NoError(t, err)
	msgs := sub.Channel()

	fanout := NewRedisFanout(fixtures.NewTestLogger(t), redisClient, "ns", "my-app@10.0.1.1")
	fanout.Connect(ctxTest, []ecspeers.Node{"my-app@10.0.1.5"})

	expectMessage(t, ctxTest, msgs, "+my-app@10.0.1.1")
	expectMessage(t, ctxTest, msgs, "+my-app@10.0.1.5")
}

func TestRedisFanoutAnnouncesDepartureOnShutdown(t *testing.T) {
	t.Parallel()

	ctxTest, cancelTest := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelTest()

	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	redisClient := redis.NewClient(&redis.Options{
		Addr: mr.Addr(),
		DB:   0,
	})

	sub := redisClient.Subscribe(ctxTest, "ns")
	defer sub.Close()
	_, err = sub.Receive(ctxTest)
	require.NoError(t, err)
	msgs := sub.Channel()

	fanout := NewRedisFanout(fixtures.NewTestLogger(t), redisClient, "ns", "my-app@10.0.1.1")

	ctxRunner, cancel := context.WithCancel(ctxTest)
	var wg wait.Group
	wg.StartWithContext(ctxRunner, fanout.Run)
	cancel()
	wg.Wait()

	expectMessage(t, ctxTest, msgs, "-my-app@10.0.1.1")
}
