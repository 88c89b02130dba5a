package ecs

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/net/http2"
	"golang.org/x/time/rate"

	"github.com/clusterpeers/ecspeers/internal/util"
)

const (
	// SourceName is the name of the ECS task source.
	SourceName           = "ecs"
	defaultClientTimeout = 9 * time.Second

	// DescribeTasks accepts at most 100 task ARNs per call.
	maxTasksPerDescribe = 100
)

// QueryError is returned when a control plane call fails, carrying the
// operation that failed.  The discoverer treats it as recoverable and retries
// on its normal poll cadence, never here.
type QueryError struct {
	Operation string
	Err       error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("%s %s: %v", SourceName, e.Operation, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Client queries the ECS control plane for the tasks backing a single
// cluster/family pair.  It performs no retries of its own.
type Client struct {
	logger logrus.FieldLogger

	ecs     ecsiface.ECSAPI
	limiter *rate.Limiter
	cluster string
	family  string
}

// NewClient returns a Client for the given cluster and task definition family.
// The limiter is shared across all clients talking to the same control plane.
func NewClient(logger logrus.FieldLogger, api ecsiface.ECSAPI, limiter *rate.Limiter, cluster, family string) (*Client, error) {
	if cluster == "" {
		return nil, errors.New("cluster must be specified")
	}
	if family == "" {
		return nil, errors.New("family must be specified")
	}
	return &Client{
		logger:  logger,
		ecs:     api,
		limiter: limiter,
		cluster: cluster,
		family:  family,
	}, nil
}

// ListClusterTasks lists the ARNs of the running tasks of the configured
// cluster and family.  An empty cluster is not an error.
func (c *Client) ListClusterTasks(ctx context.Context) ([]string, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &QueryError{Operation: "ListTasks", Err: err}
	}

	input := &ecs.ListTasksInput{
		Cluster:       aws.String(c.cluster),
		Family:        aws.String(c.family),
		DesiredStatus: aws.String(ecs.DesiredStatusRunning),
	}

	var taskArns []string
	err := c.ecs.ListTasksPagesWithContext(ctx, input, func(page *ecs.ListTasksOutput, lastPage bool) bool {
		taskArns = append(taskArns, aws.StringValueSlice(page.TaskArns)...)
		return true
	})
	if err != nil {
		return nil, &QueryError{Operation: "ListTasks", Err: err}
	}

	c.logger.WithFields(logrus.Fields{
		"cluster": c.cluster,
		"tasks":   len(taskArns),
	}).Debug("Listed running tasks")
	return taskArns, nil
}

// DescribeClusterTasks returns the full detail of the given tasks.  ARNs which
// no longer exist are simply absent from the result.
func (c *Client) DescribeClusterTasks(ctx context.Context, taskArns []string) ([]*ecs.Task, error) {
	tasks := make([]*ecs.Task, 0, len(taskArns))

	for start := 0; start < len(taskArns); start += maxTasksPerDescribe {
		end := start + maxTasksPerDescribe
		if end > len(taskArns) {
			end = len(taskArns)
		}

		if err := c.limiter.Wait(ctx); err != nil {
			return nil, &QueryError{Operation: "DescribeTasks", Err: err}
		}

		out, err := c.ecs.DescribeTasksWithContext(ctx, &ecs.DescribeTasksInput{
			Cluster: aws.String(c.cluster),
			Tasks:   aws.StringSlice(taskArns[start:end]),
		})
		if err != nil {
			return nil, &QueryError{Operation: "DescribeTasks", Err: err}
		}

		// Failures cover tasks which stopped between list and describe.  They
		// are part of normal churn, not an error.
		for _, failure := range out.Failures {
			c.logger.WithFields(logrus.Fields{
				"arn":    aws.StringValue(failure.Arn),
				"reason": aws.StringValue(failure.Reason),
			}).Debug("Task not describable")
		}

		tasks = append(tasks, out.Tasks...)
	}

	return tasks, nil
}

// NewSessionFromViper builds the AWS session shared by all Clients in the
// process.
func NewSessionFromViper(v *viper.Viper, region string) (*session.Session, error) {
	a := util.GetSubViper(v, "aws")
	// A failed call surfaces as a QueryError and waits for the next poll,
	// so the SDK must not retry underneath.
	a.SetDefault("max_retries", 0)
	a.SetDefault("client_timeout", defaultClientTimeout)
	httpTimeout := a.GetDuration("client_timeout")
	if httpTimeout <= 0 {
		return nil, errors.New("client timeout must be positive")
	}

	// This is the main config without credentials.
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSHandshakeTimeout: 3 * time.Second,
		TLSClientConfig: &tls.Config{
			// Can't use SSLv3 because of POODLE and BEAST
			// Can't use TLSv1.0 because of POODLE and BEAST using CBC cipher
			// Can't use TLSv1.1 because of RC4 cipher usage
			MinVersion: tls.VersionTLS12,
		},
		DialContext: (&net.Dialer{
			Timeout:   5 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		MaxIdleConns:    50,
		IdleConnTimeout: 1 * time.Minute,
	}
	if err := http2.ConfigureTransport(transport); err != nil {
		return nil, err
	}
	sharedConfig := aws.NewConfig().
		WithHTTPClient(&http.Client{
			Transport: transport,
			Timeout:   httpTimeout,
		}).
		WithMaxRetries(a.GetInt("max_retries")).
		WithRegion(region)
	sess, err := session.NewSession(sharedConfig)
	if err != nil {
		return nil, fmt.Errorf("error creating a new ECS session: %v", err)
	}
	return sess, nil
}
