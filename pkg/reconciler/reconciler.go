// Package reconciler provides membership reconcilers which consume the node
// sets published by the discovery loop.  The discoverer only ever supplies
// the desired set; connect and disconnect policy lives here.
package reconciler

import (
	"fmt"

	"github.com/go-redis/redis/v8"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/clusterpeers/ecspeers"
	"github.com/clusterpeers/ecspeers/internal/util"
)

// Names of the shipped reconcilers.
const (
	NameLogging = "logging"
	NameTracker = "tracker"
	NameRedis   = "redis"
)

// Get initialises the named reconciler from the viper config.  self is the
// identity the redis reconciler announces.
func Get(logger logrus.FieldLogger, name string, v *viper.Viper, self ecspeers.Node) (ecspeers.Reconciler, error) {
	logger = logger.WithField("reconciler", name)
	switch name {
	case "", NameLogging:
		return NewLogging(logger), nil
	case NameTracker:
		backoffFactory, err := util.GetRetryFromViper(util.GetSubViper(v, "tracker"))
		if err != nil {
			return nil, err
		}
		v.SetDefault(ecspeers.ParamExpiryInterval, ecspeers.DefaultExpiryInterval)
		connect := func(node ecspeers.Node) error {
			logger.WithField("node", node).Info("Connecting to node")
			return nil
		}
		return NewTracker(logger, connect, v.GetDuration(ecspeers.ParamExpiryInterval), backoffFactory), nil
	case NameRedis:
		addr := v.GetString(ecspeers.ParamRedisAddr)
		if addr == "" {
			return nil, fmt.Errorf("%s must be specified for the %s reconciler", ecspeers.ParamRedisAddr, NameRedis)
		}
		v.SetDefault(ecspeers.ParamNamespace, "ecspeers")
		client := redis.NewClient(&redis.Options{
			Addr: addr,
			DB:   0,
		})
		return NewRedisFanout(logger, client, v.GetString(ecspeers.ParamNamespace), self), nil
	default:
		return nil, fmt.Errorf("unknown reconciler %q", name)
	}
}
