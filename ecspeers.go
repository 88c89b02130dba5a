package ecspeers

import (
	"context"
)

// Node is the cluster address of a peer, in "<short-name>@<ip>" form.  It is
// the only currency exchanged with the membership reconciler.
type Node string

// UnknownNode is a Node of an unknown peer.
const UnknownNode Node = ""

// Runnable is a long running function intended to be launched in a goroutine.
type Runnable func(context.Context)

// Runner exposes a Runnable through an interface
type Runner interface {
	Run(context.Context)
}

// MaybeAppendRunnable appends the Run method of maybeRunner to runnables if it
// implements Runner.
func MaybeAppendRunnable(runnables []Runnable, maybeRunner interface{}) []Runnable {
	if r, ok := maybeRunner.(Runner); ok {
		runnables = append(runnables, r.Run)
	}
	return runnables
}

// Reconciler receives the desired cluster membership once per discovery poll.
// It owns the policy for connecting to newly seen nodes and for dropping nodes
// which stop being published.  Implementations must be safe for repeated and
// concurrent calls from independent discoverers.
type Reconciler interface {
	Connect(ctx context.Context, nodes []Node)
}
