package reconciler

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/clusterpeers/ecspeers"
)

// Logging records each published membership set and does nothing else.  It is
// the default reconciler, useful when the connection transport is driven by
// something outside this process.
type Logging struct {
	logger logrus.FieldLogger
}

func NewLogging(logger logrus.FieldLogger) *Logging {
	return &Logging{logger: logger}
}

func (l *Logging) Connect(ctx context.Context, nodes []ecspeers.Node) {
	l.logger.WithFields(logrus.Fields{
		"count": len(nodes),
		"nodes": nodes,
	}).Info("Cluster membership")
}
