// Package discovery implements the periodic poll which turns the ECS control
// plane's view of a cluster into membership updates for a reconciler.
package discovery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/sirupsen/logrus"
	"github.com/tilinna/clock"

	"github.com/clusterpeers/ecspeers"
	"github.com/clusterpeers/ecspeers/pkg/nodeid"
)

// TaskSource lists and describes the orchestration tasks backing a topology.
type TaskSource interface {
	ListClusterTasks(ctx context.Context) ([]string, error)
	DescribeClusterTasks(ctx context.Context, taskArns []string) ([]*ecs.Task, error)
}

// Discoverer runs the list -> describe -> filter -> reconcile loop for one
// topology.  All configuration is immutable after construction; the only
// mutable state is an observability snapshot of the last published set.
type Discoverer struct {
	logger logrus.FieldLogger

	topology  string
	shortName string
	interval  time.Duration

	source     TaskSource
	reconciler ecspeers.Reconciler
	identity   nodeid.Identity

	mu        sync.RWMutex
	lastNodes []ecspeers.Node
}

// NewDiscoverer validates the topology configuration and returns a Discoverer.
// A missing short name is a configuration error and fails construction; there
// is no recovering from it at runtime.
func NewDiscoverer(
	logger logrus.FieldLogger,
	topology, shortName string,
	interval time.Duration,
	source TaskSource,
	reconciler ecspeers.Reconciler,
	identity nodeid.Identity,
) (*Discoverer, error) {
	if shortName == "" {
		return nil, errors.New("short-name must be specified")
	}
	if interval <= 0 {
		interval = ecspeers.DefaultPollInterval
	}
	if source == nil {
		return nil, errors.New("task source must be specified")
	}
	if reconciler == nil {
		return nil, errors.New("reconciler must be specified")
	}
	return &Discoverer{
		logger:     logger.WithField("topology", topology),
		topology:   topology,
		shortName:  shortName,
		interval:   interval,
		source:     source,
		reconciler: reconciler,
		identity:   identity,
	}, nil
}

// Topology returns the name of the topology this Discoverer polls.
func (d *Discoverer) Topology() string {
	return d.topology
}

// Nodes returns a copy of the membership published on the last successful
// poll.  Intended for admin surfaces, not for reconciliation.
func (d *Discoverer) Nodes() []ecspeers.Node {
	d.mu.RLock()
	defer d.mu.RUnlock()
	nodes := make([]ecspeers.Node, len(d.lastNodes))
	copy(nodes, d.lastNodes)
	return nodes
}

// Run polls until the context is closed.  The first poll happens before the
// timer is armed, so a fresh process reconciles before it is observable as up.
// The timer is one-shot and re-armed only after a cycle completes, so polls
// never overlap; a slow control plane call delays the next cycle instead of
// duplicating it.
func (d *Discoverer) Run(ctx context.Context) {
	clck := clock.FromContext(ctx)

	if err := d.poll(ctx); err != nil {
		d.logger.WithError(err).Warn("Initial discovery poll failed")
	}

	timer := clck.NewTimer(d.interval)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			if err := d.poll(ctx); err != nil {
				d.logger.WithError(err).Warn("Discovery poll failed")
			}
			timer.Reset(d.interval)
		}
	}
}

// poll runs one full discovery cycle.  On a query failure the cycle aborts
// before the reconciler is invoked: a failed poll must never present an empty
// or partial membership as ground truth.
func (d *Discoverer) poll(ctx context.Context) error {
	taskArns, err := d.source.ListClusterTasks(ctx)
	if err != nil {
		return err
	}

	var tasks []*ecs.Task
	if len(taskArns) > 0 {
		tasks, err = d.source.DescribeClusterTasks(ctx, taskArns)
		if err != nil {
			return err
		}
	}

	nodes := FilterTasks(tasks, d.shortName, d.identity)
	d.logger.WithFields(logrus.Fields{
		"tasks": len(taskArns),
		"nodes": len(nodes),
	}).Debug("Discovered membership")

	// An empty set is a valid outcome, the reconciler is always told.
	d.reconciler.Connect(ctx, nodes)

	d.mu.Lock()
	d.lastNodes = nodes
	d.mu.Unlock()
	return nil
}
