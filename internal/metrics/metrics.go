// Package metrics publishes order flow counters to CloudWatch.
package metrics

import (
	"context"
	"time"

	sdkaws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/cloudwatch"
	cwtypes "github.com/aws/aws-sdk-go-v2/service/cloudwatch/types"
	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
	"go.uber.org/zap"
)

// Counter names
const (
	OrdersCreated      = "OrdersCreated"
	OrdersStaged       = "OrdersStaged"
	PaymentsCaptured   = "PaymentsCaptured"
	PaymentsFailed     = "PaymentsFailed"
	DuplicateCallbacks = "DuplicateCallbacks"
	ExpiredCallbacks   = "ExpiredCallbacks"
	CouponsReleased    = "CouponsReleased"
	CouponsRejected    = "CouponsRejected"
	OrdersArchived     = "OrdersArchived"
	GatewayErrors      = "GatewayErrors"
)

// Recorder counts events. Implementations must not fail the caller.
type Recorder interface {
	Incr(ctx context.Context, name string, dims map[string]string)
}

// CloudWatch sends each increment as a Count datum.
type CloudWatch struct {
	client    aws.CloudWatchAPI
	namespace string
	logger    *zap.Logger
}

// NewCloudWatch returns a Recorder publishing under namespace.
func NewCloudWatch(client aws.CloudWatchAPI, namespace string, logger *zap.Logger) *CloudWatch {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CloudWatch{client: client, namespace: namespace, logger: logger}
}

// Incr implements Recorder. Errors are logged.
func (c *CloudWatch) Incr(ctx context.Context, name string, dims map[string]string) {
	datum := cwtypes.MetricDatum{
		MetricName: sdkaws.String(name),
		Unit:       cwtypes.StandardUnitCount,
		Value:      sdkaws.Float64(1),
		Timestamp:  sdkaws.Time(time.Now()),
	}
	for k, v := range dims {
		datum.Dimensions = append(datum.Dimensions, cwtypes.Dimension{Name: sdkaws.String(k), Value: sdkaws.String(v)})
	}
	_, err := c.client.PutMetricData(ctx, &cloudwatch.PutMetricDataInput{
		Namespace:  sdkaws.String(c.namespace),
		MetricData: []cwtypes.MetricDatum{datum},
	})
	if err != nil {
		c.logger.Warn("put metric failed", zap.String("metric", name), zap.Error(err))
	}
}

// Nop discards all increments.
type Nop struct{}

func (Nop) Incr(context.Context, string, map[string]string) {}
