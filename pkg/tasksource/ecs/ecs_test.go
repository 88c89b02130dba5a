package ecs

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/ecs"
	"github.com/aws/aws-sdk-go/service/ecs/ecsiface"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/clusterpeers/ecspeers/internal/fixtures"
)

type fakeECS struct {
	ecsiface.ECSAPI

	listPages   [][]string
	listErr     error
	describeErr error

	describeCalls [][]string
}

func (f *fakeECS) ListTasksPagesWithContext(ctx aws.Context, input *ecs.ListTasksInput, fn func(*ecs.ListTasksOutput, bool) bool, opts ...request.Option) error {
	if f.listErr != nil {
		return f.listErr
	}
	for i, page := range f.listPages {
		if !fn(&ecs.ListTasksOutput{TaskArns: aws.StringSlice(page)}, i == len(f.listPages)-1) {
			break
		}
	}
	return nil
}

func (f *fakeECS) DescribeTasksWithContext(ctx aws.Context, input *ecs.DescribeTasksInput, opts ...request.Option) (*ecs.DescribeTasksOutput, error) {
	if f.describeErr != nil {
		return nil, f.describeErr
	}
	arns := aws.StringValueSlice(input.Tasks)
	f.describeCalls = append(f.describeCalls, arns)
	out := &ecs.DescribeTasksOutput{}
	for _, arn := range arns {
		out.Tasks = append(out.Tasks, &ecs.Task{
			TaskArn:      aws.String(arn),
			HealthStatus: aws.String(ecs.HealthStatusHealthy),
		})
	}
	return out, nil
}

func newTestClient(t *testing.T, api ecsiface.ECSAPI) *Client {
	c, err := NewClient(fixtures.NewTestLogger(t), api, rate.NewLimiter(rate.Inf, 0), "cluster-1", "my-app")
	require.NoError(t, err)
	return c
}

func TestNewClientRequiresClusterAndFamily(t *testing.T) {
	t.Parallel()
	limiter := rate.NewLimiter(rate.Inf, 0)
	_, err := NewClient(fixtures.NewTestLogger(t), &fakeECS{}, limiter, "", "my-app")
	assert.Error(t, err)
	_, err = NewClient(fixtures.NewTestLogger(t), &fakeECS{}, limiter, "cluster-1", "")
	assert.Error(t, err)
}

func TestListClusterTasksCollectsAllPages(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, &fakeECS{listPages: [][]string{
		{"arn:1", "arn:2"},
		{"arn:3"},
	}})
	arns, err := c.ListClusterTasks(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []string{"arn:1", "arn:2", "arn:3"}, arns)
}

func TestListClusterTasksEmptyClusterIsNotAnError(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, &fakeECS{})
	arns, err := c.ListClusterTasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, arns)
}

func TestListClusterTasksWrapsFailures(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, &fakeECS{listErr: errors.New("throttled")})
	_, err := c.ListClusterTasks(context.Background())
	require.Error(t, err)
	var qerr *QueryError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, "ListTasks", qerr.Operation)
	assert.EqualError(t, err, "ecs ListTasks: throttled")
}

func TestDescribeClusterTasksChunksRequests(t *testing.T) {
	t.Parallel()
	fake := &fakeECS{}
	c := newTestClient(t, fake)

	arns := make([]string, 250)
	for i := range arns {
		arns[i] = fmt.Sprintf("arn:%d", i)
	}
	tasks, err := c.DescribeClusterTasks(context.Background(), arns)
	require.NoError(t, err)
	assert.Len(t, tasks, 250)
	require.Len(t, fake.describeCalls, 3)
	assert.Len(t, fake.describeCalls[0], 100)
	assert.Len(t, fake.describeCalls[1], 100)
	assert.Len(t, fake.describeCalls[2], 50)
}

func TestDescribeClusterTasksWrapsFailures(t *testing.T) {
	t.Parallel()
	c := newTestClient(t, &fakeECS{describeErr: errors.New("access denied")})
	_, err := c.DescribeClusterTasks(context.Background(), []string{"arn:1"})
	require.Error(t, err)
	var qerr *QueryError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, "DescribeTasks", qerr.Operation)
}

// Retrying a failed call is the discoverer's job on its poll cadence, never
// the SDK's.
func TestNewSessionFromViperDisablesSDKRetries(t *testing.T) {
	t.Parallel()
	sess, err := NewSessionFromViper(viper.New(), "us-east-1")
	require.NoError(t, err)
	require.NotNil(t, sess.Config.MaxRetries)
	assert.Equal(t, 0, *sess.Config.MaxRetries)
}
