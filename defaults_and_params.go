package ecspeers

import (
	"time"

	"github.com/spf13/pflag"
)

const (
	// DefaultPollInterval is the default interval between discovery polls.
	DefaultPollInterval = 5 * time.Second
	// DefaultRegion is the default AWS region to query.
	DefaultRegion = "us-east-1"
	// DefaultReconciler is the name of the default membership reconciler.
	DefaultReconciler = "logging"
	// DefaultExpiryInterval is the default interval after which a node which
	// stops being published is dropped by the tracker reconciler.
	DefaultExpiryInterval = 20 * time.Second
	// DefaultMaxCloudRequests is the maximum number of control plane requests per second.
	DefaultMaxCloudRequests = 10
	// DefaultBurstCloudRequests is the burst number of control plane requests per second.
	DefaultBurstCloudRequests = DefaultMaxCloudRequests + 5
)

const (
	// ParamCluster is the name of parameter with the ECS cluster to discover tasks in.
	ParamCluster = "cluster"
	// ParamFamily is the name of parameter with the ECS task definition family to discover.
	ParamFamily = "family"
	// ParamShortName is the name of parameter with the logical short name used to address peers.
	ParamShortName = "short-name"
	// ParamPollInterval is the name of parameter with the interval between discovery polls.
	ParamPollInterval = "poll-interval"
	// ParamRegion is the name of parameter with the AWS region.
	ParamRegion = "region"
	// ParamAdvertiseIP is the name of parameter with the IP to advertise as this process.
	// Empty means it is derived from the local routable address.
	ParamAdvertiseIP = "advertise-ip"
	// ParamTopologies is the name of parameter with the list of named topologies to discover.
	// When empty a single topology is built from the top level parameters.
	ParamTopologies = "topologies"
	// ParamReconciler is the name of parameter selecting the membership reconciler.
	ParamReconciler = "reconciler"
	// ParamExpiryInterval is the name of parameter with the tracker node expiry interval.
	ParamExpiryInterval = "expiry-interval"
	// ParamRedisAddr is the name of parameter with the redis address for the redis reconciler.
	ParamRedisAddr = "redis-addr"
	// ParamNamespace is the name of parameter with the redis pub/sub namespace.
	ParamNamespace = "namespace"
	// ParamWebAddr is the name of parameter with the address of the observability web server.
	ParamWebAddr = "web-addr"
	// ParamMaxCloudRequests is the name of parameter with maximum number of control plane requests per second.
	ParamMaxCloudRequests = "max-cloud-requests"
	// ParamBurstCloudRequests is the name of parameter with burst number of control plane requests per second.
	ParamBurstCloudRequests = "burst-cloud-requests"
)

// AddFlags adds flags to the specified FlagSet.
func AddFlags(fs *pflag.FlagSet) {
	fs.String(ParamCluster, "", "ECS cluster to discover tasks in")
	fs.String(ParamFamily, "", "ECS task definition family to discover")
	fs.String(ParamShortName, "", "Logical short name used to address peers")
	fs.Duration(ParamPollInterval, DefaultPollInterval, "Interval between discovery polls")
	fs.String(ParamRegion, DefaultRegion, "AWS region")
	fs.String(ParamAdvertiseIP, "", "IP to advertise as this process (default: local routable address)")
	fs.StringSlice(ParamTopologies, nil, "Named topologies to discover (default: one built from the top level flags)")
	fs.String(ParamReconciler, DefaultReconciler, "Membership reconciler (logging, tracker or redis)")
	fs.Duration(ParamExpiryInterval, DefaultExpiryInterval, "Tracker node expiry interval")
	fs.String(ParamRedisAddr, "", "Redis address for the redis reconciler")
	fs.String(ParamNamespace, "ecspeers", "Redis pub/sub namespace")
	fs.String(ParamWebAddr, "", "Address of the observability web server (empty to disable)")
	fs.Int(ParamMaxCloudRequests, DefaultMaxCloudRequests, "Maximum number of control plane requests per second")
	fs.Int(ParamBurstCloudRequests, DefaultBurstCloudRequests, "Burst number of control plane requests per second")
}
