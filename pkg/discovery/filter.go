package discovery

import (
	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/ecs"

	"github.com/clusterpeers/ecspeers"
	"github.com/clusterpeers/ecspeers/pkg/nodeid"
)

// FilterTasks reduces described tasks to the set of peer addresses.  Only
// HEALTHY tasks contribute; a missing or transitional health status means the
// task is not ready yet, never an error.  Interfaces without a private IPv4
// address are dropped the same way.  The result is de-duplicated, excludes the
// local process and preserves discovery order.
func FilterTasks(tasks []*ecs.Task, shortName string, identity nodeid.Identity) []ecspeers.Node {
	var nodes []ecspeers.Node
	seen := make(map[ecspeers.Node]struct{})

	for _, task := range tasks {
		if task == nil || aws.StringValue(task.HealthStatus) != ecs.HealthStatusHealthy {
			continue
		}
		for _, container := range task.Containers {
			if container == nil {
				continue
			}
			for _, iface := range container.NetworkInterfaces {
				if iface == nil {
					continue
				}
				ip := aws.StringValue(iface.PrivateIpv4Address)
				if ip == "" {
					// A task between state transitions may not have an
					// address assigned yet.
					continue
				}
				node := nodeid.Format(shortName, ip)
				if identity.Is(node) {
					continue
				}
				if _, ok := seen[node]; ok {
					continue
				}
				seen[node] = struct{}{}
				nodes = append(nodes, node)
			}
		}
	}

	return nodes
}
