package reconciler

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/clusterpeers/ecspeers"
	"github.com/clusterpeers/ecspeers/internal/util"
)

// ConnectFunc establishes a connection to a newly seen node.  It is retried
// with the configured backoff; a node whose connect ultimately fails is
// retried on the next poll.
type ConnectFunc func(node ecspeers.Node) error

// Tracker keeps a view of the connected membership across polls.  Newly
// published nodes are connected once; nodes which stop being published are
// only dropped after the expiry interval, so a single flaky poll upstream does
// not churn connections.  Thread safe.
type Tracker struct {
	logger logrus.FieldLogger

	connect        ConnectFunc
	expiryInterval time.Duration
	newBackoff     util.BackoffFactory

	mu      sync.Mutex
	nodes   map[ecspeers.Node]time.Time
	dialing map[ecspeers.Node]struct{}
}

func NewTracker(logger logrus.FieldLogger, connect ConnectFunc, expiryInterval time.Duration, backoffFactory util.BackoffFactory) *Tracker {
	return &Tracker{
		logger:         logger,
		connect:        connect,
		expiryInterval: expiryInterval,
		newBackoff:     backoffFactory,
		nodes:          make(map[ecspeers.Node]time.Time),
		dialing:        make(map[ecspeers.Node]struct{}),
	}
}

func (t *Tracker) Connect(ctx context.Context, nodes []ecspeers.Node) {
	now := clock.FromContext(ctx).Now()
	expiry := now.Add(t.expiryInterval)

	t.mu.Lock()
	var fresh []ecspeers.Node
	for _, node := range nodes {
		if _, known := t.nodes[node]; known {
			t.nodes[node] = expiry
			continue
		}
		if _, busy := t.dialing[node]; busy {
			continue // a concurrent publisher is already connecting it
		}
		t.dialing[node] = struct{}{}
		fresh = append(fresh, node)
	}
	t.expireLocked(now)
	t.mu.Unlock()

	// Dialing happens outside the lock so that List and concurrent
	// publishers are not held up while a connect backs off.
	for _, node := range fresh {
		err := t.dial(ctx, node)
		t.mu.Lock()
		delete(t.dialing, node)
		if err == nil {
			t.nodes[node] = expiry
		}
		t.mu.Unlock()
		if err != nil {
			t.logger.WithError(err).WithField("node", node).Warn("Failed to connect to node")
			continue // the next poll publishes it again
		}
		t.logger.WithField("node", node).Info("Added node")
	}
}

// expireLocked drops nodes which have not been published recently enough.
// Active disconnection is left to the ConnectFunc owner's policy.
func (t *Tracker) expireLocked(now time.Time) {
	for node, expiry := range t.nodes {
		if now.After(expiry) {
			t.logger.WithField("node", node).Info("Expired node")
			delete(t.nodes, node)
		}
	}
}

func (t *Tracker) dial(ctx context.Context, node ecspeers.Node) error {
	op := func() error {
		return t.connect(node)
	}
	return backoff.Retry(op, backoff.WithContext(t.newBackoff(), ctx))
}

// List returns a sorted copy of the tracked membership.  Intended for admin
// surfaces, not performance critical code.
func (t *Tracker) List() []ecspeers.Node {
	t.mu.Lock()
	defer t.mu.Unlock()
	nodes := make([]ecspeers.Node, 0, len(t.nodes))
	for node := range t.nodes {
		nodes = append(nodes, node)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i] < nodes[j] })
	return nodes
}
