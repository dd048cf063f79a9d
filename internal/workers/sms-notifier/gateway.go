// internal/workers/sms-notifier/gateway.go
package smsnotifier

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/aws/smithy-go"
)

// SendStatus classifies a gateway attempt. Transient sends are retried with
// backoff, rejected sends are not.
type SendStatus string

const (
	SendDelivered SendStatus = "delivered"
	SendRejected  SendStatus = "rejected"
	SendTransient SendStatus = "transient"
)

type SendResult struct {
	Status     SendStatus
	ProviderID string
	Reason     string
}

// Gateway is the outbound SMS provider. The idempotency key rides with
// every send so a redelivered event cannot text the recipient twice.
type Gateway interface {
	Send(ctx context.Context, to, body, idempotencyKey string) (*SendResult, error)
}

// Define interface for mocking
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSGateway sends SMS through AWS SNS.
type SNSGateway struct {
	client   SNSService
	senderID string
}

func NewSNSGateway(client SNSService, senderID string) *SNSGateway {
	return &SNSGateway{client: client, senderID: senderID}
}

func (g *SNSGateway) Send(ctx context.Context, to, body, idempotencyKey string) (*SendResult, error) {
	attrs := map[string]types.MessageAttributeValue{
		"IdempotencyKey": {
			DataType:    aws.String("String"),
			StringValue: aws.String(idempotencyKey),
		},
	}
	if g.senderID != "" {
		attrs["AWS.SNS.SMS.SenderID"] = types.MessageAttributeValue{
			DataType:    aws.String("String"),
			StringValue: aws.String(g.senderID),
		}
	}

	out, err := g.client.Publish(ctx, &sns.PublishInput{
		PhoneNumber:       aws.String(to),
		Message:           aws.String(body),
		MessageAttributes: attrs,
	})
	if err != nil {
		return classifySNSError(err), nil
	}
	return &SendResult{Status: SendDelivered, ProviderID: aws.ToString(out.MessageId)}, nil
}

// classifySNSError maps provider failures onto retry semantics. A client
// fault (bad number, invalid parameter) will fail the same way every time,
// so retrying it would only burn attempts.
func classifySNSError(err error) *SendResult {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) && apiErr.ErrorFault() == smithy.FaultClient {
		return &SendResult{Status: SendRejected, Reason: fmt.Sprintf("%s: %s", apiErr.ErrorCode(), apiErr.ErrorMessage())}
	}
	return &SendResult{Status: SendTransient, Reason: err.Error()}
}
