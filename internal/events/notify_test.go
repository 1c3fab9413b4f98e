package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/imrishuroy/go-idempotent-checkout/internal/aws"
)

type captureSQS struct {
	inputs []*sqs.SendMessageInput
}

func (c *captureSQS) SendMessage(ctx context.Context, params *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	c.inputs = append(c.inputs, params)
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSNotifier_Notify(t *testing.T) {
	q := &captureSQS{}
	n := NewSQSNotifier(aws.NewPublisher(q, "https://sqs.local/notifications"))

	err := n.Notify(context.Background(), Notification{UserID: "u1", OrderID: "o1", Amount: 450, Status: StatusPlaced})
	if err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(q.inputs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(q.inputs))
	}
	in := q.inputs[0]
	if *in.QueueUrl != "https://sqs.local/notifications" {
		t.Fatalf("wrong queue %s", *in.QueueUrl)
	}
	var got Notification
	if err := json.Unmarshal([]byte(*in.MessageBody), &got); err != nil {
		t.Fatalf("body: %v", err)
	}
	if got.OrderID != "o1" || got.Status != StatusPlaced || got.OccurredAt.IsZero() {
		t.Fatalf("unexpected body %+v", got)
	}
	if v := in.MessageAttributes["order_id"].StringValue; v == nil || *v != "o1" {
		t.Fatalf("order_id attribute missing")
	}
}
