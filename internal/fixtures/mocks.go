package fixtures

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clusterpeers/ecspeers"
)

// MockReconciler implements a mock ecspeers.Reconciler
type MockReconciler struct {
	TB testing.TB

	FnConnect func(ctx context.Context, nodes []ecspeers.Node)
}

func (m *MockReconciler) Connect(ctx context.Context, nodes []ecspeers.Node) {
	if m.FnConnect != nil {
		m.FnConnect(ctx, nodes)
	} else {
		assert.Fail(m.TB, "Reconciler.Connect must not be called")
	}
}
