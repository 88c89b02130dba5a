package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"
	"os/signal"
	"syscall"

	"github.com/ash2k/stager/wait"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"github.com/clusterpeers/ecspeers"
	"github.com/clusterpeers/ecspeers/internal/util"
	"github.com/clusterpeers/ecspeers/pkg/discovery"
	"github.com/clusterpeers/ecspeers/pkg/nodeid"
	"github.com/clusterpeers/ecspeers/pkg/reconciler"
	ecssource "github.com/clusterpeers/ecspeers/pkg/tasksource/ecs"
	"github.com/clusterpeers/ecspeers/pkg/web"
)

const (
	// ParamVerbose enables verbose logging.
	ParamVerbose = "verbose"
	// ParamProfile enables profiler endpoint on the specified address and port.
	ParamProfile = "profile"
	// ParamJSON makes logger log in JSON format.
	ParamJSON = "json"
	// ParamConfigPath provides file with configuration.
	ParamConfigPath = "config-path"
	// ParamVersion makes program output its version.
	ParamVersion = "version"

	// localAddressProbe is only used for route selection when deriving the
	// advertised IP, it is never talked to.
	localAddressProbe = "1.1.1.1:1"
)

func main() {
	v, version, err := setupConfiguration()
	if err != nil {
		if err == pflag.ErrHelp {
			return
		}
		logrus.Fatalf("Error while parsing configuration: %v", err)
	}
	if version {
		fmt.Printf("Version: %s - Commit: %s - Date: %s\n", Version, GitCommit, BuildDate)
		return
	}
	if err := run(v); err != nil {
		logrus.Fatalf("%v", err)
	}
}

func run(v *viper.Viper) error {
	logrus.Info("Starting discovery")
	runnables, err := constructRunnables(v)
	if err != nil {
		return err
	}

	profileAddr := v.GetString(ParamProfile)
	if profileAddr != "" {
		go func() {
			logrus.Errorf("Profiler server failed: %v", http.ListenAndServe(profileAddr, nil))
		}()
	}

	ctx, cancelFunc := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancelFunc()

	var wg wait.Group
	defer wg.Wait()
	for _, r := range runnables {
		wg.StartWithContext(ctx, r)
	}

	<-ctx.Done()
	return nil
}

// constructRunnables builds one discoverer per configured topology, plus the
// optional observability web server.
func constructRunnables(v *viper.Viper) ([]ecspeers.Runnable, error) {
	var runnables []ecspeers.Runnable
	logger := logrus.StandardLogger()

	limiter := rate.NewLimiter(rate.Limit(v.GetInt(ecspeers.ParamMaxCloudRequests)), v.GetInt(ecspeers.ParamBurstCloudRequests))

	topologies := v.GetStringSlice(ecspeers.ParamTopologies)
	named := len(topologies) > 0
	if !named {
		// A single topology built from the top level parameters.
		topologies = []string{"default"}
	}

	var peerSources []web.PeerSource
	for _, name := range topologies {
		vTop := v
		if named {
			vTop = topologyConfig(v, name)
		}

		d, rec, err := constructTopology(vTop, logger, limiter, name)
		if err != nil {
			return nil, fmt.Errorf("failed to construct topology %s: %v", name, err)
		}
		runnables = append(runnables, d.Run)
		// The redis reconciler needs a goroutine to announce departure on shutdown.
		runnables = ecspeers.MaybeAppendRunnable(runnables, rec)
		peerSources = append(peerSources, d)
	}

	webAddr := v.GetString(ecspeers.ParamWebAddr)
	if webAddr != "" {
		server, err := web.NewServer(logger, webAddr, peerSources...)
		if err != nil {
			return nil, err
		}
		runnables = append(runnables, server.Run)
	}

	return runnables, nil
}

// topologyConfig builds the sub configuration of a named topology, falling
// back to the top level parameters for anything not overridden.
func topologyConfig(v *viper.Viper, name string) *viper.Viper {
	sub := util.GetSubViper(v, "topology."+name)
	for _, param := range []string{
		ecspeers.ParamCluster,
		ecspeers.ParamFamily,
		ecspeers.ParamShortName,
		ecspeers.ParamPollInterval,
		ecspeers.ParamRegion,
		ecspeers.ParamAdvertiseIP,
		ecspeers.ParamReconciler,
		ecspeers.ParamExpiryInterval,
		ecspeers.ParamRedisAddr,
		ecspeers.ParamNamespace,
	} {
		sub.SetDefault(param, v.Get(param))
	}
	return sub
}

func constructTopology(v *viper.Viper, logger *logrus.Logger, limiter *rate.Limiter, name string) (*discovery.Discoverer, ecspeers.Reconciler, error) {
	v.SetDefault(ecspeers.ParamPollInterval, ecspeers.DefaultPollInterval)
	v.SetDefault(ecspeers.ParamRegion, ecspeers.DefaultRegion)
	v.SetDefault(ecspeers.ParamReconciler, ecspeers.DefaultReconciler)

	shortName := v.GetString(ecspeers.ParamShortName)
	if shortName == "" {
		return nil, nil, fmt.Errorf("%s must be specified", ecspeers.ParamShortName)
	}

	identity, err := localIdentity(v, shortName)
	if err != nil {
		return nil, nil, fmt.Errorf("error determining local identity: %v", err)
	}
	logger.WithFields(logrus.Fields{
		"topology": name,
		"self":     identity.Node(),
	}).Info("Resolved local identity")

	sess, err := ecssource.NewSessionFromViper(v, v.GetString(ecspeers.ParamRegion))
	if err != nil {
		return nil, nil, err
	}
	source, err := ecssource.NewClient(
		logger.WithField("topology", name),
		ecs.New(sess),
		limiter,
		v.GetString(ecspeers.ParamCluster),
		v.GetString(ecspeers.ParamFamily),
	)
	if err != nil {
		return nil, nil, err
	}

	rec, err := reconciler.Get(logger.WithField("topology", name), v.GetString(ecspeers.ParamReconciler), v, identity.Node())
	if err != nil {
		return nil, nil, err
	}

	d, err := discovery.NewDiscoverer(
		logger,
		name,
		shortName,
		v.GetDuration(ecspeers.ParamPollInterval),
		source,
		rec,
		identity,
	)
	if err != nil {
		return nil, nil, err
	}
	return d, rec, nil
}

func localIdentity(v *viper.Viper, shortName string) (nodeid.Identity, error) {
	if ip := v.GetString(ecspeers.ParamAdvertiseIP); ip != "" {
		return nodeid.NewIdentity(shortName, ip), nil
	}
	return nodeid.LocalIdentity(shortName, localAddressProbe)
}

func setupConfiguration() (*viper.Viper, bool, error) {
	v := viper.New()
	defer setupLogger(v) // Apply logging configuration in case of early exit
	util.InitViper(v, "")

	var version bool

	cmd := pflag.NewFlagSet(os.Args[0], pflag.ContinueOnError)

	cmd.BoolVar(&version, ParamVersion, false, "Print the version and exit")
	cmd.Bool(ParamVerbose, false, "Verbose")
	cmd.Bool(ParamJSON, false, "Log in JSON format")
	cmd.String(ParamProfile, "", "Enable profiler endpoint on the specified address and port")
	cmd.String(ParamConfigPath, "", "Path to the configuration file")

	ecspeers.AddFlags(cmd)

	cmd.VisitAll(func(flag *pflag.Flag) {
		if err := v.BindPFlag(flag.Name, flag); err != nil {
			panic(err) // Should never happen
		}
	})

	if err := cmd.Parse(os.Args[1:]); err != nil {
		return nil, false, err
	}

	configPath := v.GetString(ParamConfigPath)
	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, false, err
		}
	}

	return v, version, nil
}

func setupLogger(v *viper.Viper) {
	if v.GetBool(ParamVerbose) {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if v.GetBool(ParamJSON) {
		logrus.SetFormatter(&logrus.JSONFormatter{})
	}
}
