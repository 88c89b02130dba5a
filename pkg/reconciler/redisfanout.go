package reconciler

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/clusterpeers/ecspeers"
)

type RedisClient interface {
	Publish(ctx context.Context, channel string, message interface{}) *redis.IntCmd
}

// RedisFanout republishes the discovered membership as presence messages on a
// Redis pub/sub channel, so processes outside the ECS cluster can follow the
// topology.  Each node is announced as "+<node>"; on shutdown the local
// process announces "-<self>".
//
// Note that we're not trying to solve the CAP theorem here, if Redis has a bad
// time, then so do we.
type RedisFanout struct {
	logger logrus.FieldLogger

	client    RedisClient
	namespace string
	self      ecspeers.Node
}

func NewRedisFanout(logger logrus.FieldLogger, client RedisClient, namespace string, self ecspeers.Node) *RedisFanout {
	return &RedisFanout{
		logger:    logger,
		client:    client,
		namespace: namespace,
		self:      self,
	}
}

func (r *RedisFanout) Connect(ctx context.Context, nodes []ecspeers.Node) {
	r.announce(ctx, r.self)
	for _, node := range nodes {
		r.announce(ctx, node)
	}
}

func (r *RedisFanout) announce(ctx context.Context, node ecspeers.Node) {
	if node == ecspeers.UnknownNode {
		return
	}
	if err := r.client.Publish(ctx, r.namespace, "+"+string(node)).Err(); err != nil {
		r.logger.WithError(err).WithField("node", node).Warn("Failed to announce node")
	}
}

// Run blocks until the context is closed, then announces the local process's
// absence so followers drop it without waiting for their expiry.
func (r *RedisFanout) Run(ctx context.Context) {
	<-ctx.Done()

	if r.self == ecspeers.UnknownNode {
		return
	}
	clck := clock.FromContext(ctx)
	ctxExit, cancel := clck.TimeoutContext(context.Background(), 1*time.Second)
	defer cancel()
	if err := r.client.Publish(ctxExit, r.namespace, "-"+string(r.self)).Err(); err != nil {
		r.logger.WithError(err).Warn("Failed to announce departure")
	}
}
