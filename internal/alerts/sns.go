// Package alerts tells operators when a query could not be answered by any
// fallback strategy.
package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/aws/aws-sdk-go-v2/service/sns/types"

	apperrors "nlq-resolver/internal/common/errors"
	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
)

const subjectExhausted = "nlq-resolver: fallback strategies exhausted"

// Publisher is satisfied by the shared SNS client.
type Publisher interface {
	Publish(ctx context.Context, input *sns.PublishInput) (*sns.PublishOutput, error)
}

// ExhaustedAlert is the JSON body of the SNS message.
type ExhaustedAlert struct {
	Service   string                   `json:"service"`
	ErrorCode string                   `json:"errorCode"`
	SQL       string                   `json:"sql"`
	Attempts  []models.FallbackAttempt `json:"attempts"`
	LastError string                   `json:"lastError"`
	Timestamp time.Time                `json:"timestamp"`
}

// SNSPublisher implements the execution engine's Alerter.
type SNSPublisher struct {
	client   Publisher
	topicARN string
	service  string
	log      logger.Logger
}

func NewSNSPublisher(client Publisher, topicARN, service string, log logger.Logger) *SNSPublisher {
	return &SNSPublisher{
		client:   client,
		topicARN: topicARN,
		service:  service,
		log:      logger.ForComponent(log, "alerts"),
	}
}

func (p *SNSPublisher) PublishExhausted(ctx context.Context, sql string, attempts []models.FallbackAttempt) error {
	alert := ExhaustedAlert{
		Service:   p.service,
		ErrorCode: string(apperrors.ErrCodeExhaustedFallbacks),
		SQL:       sql,
		Attempts:  attempts,
		Timestamp: time.Now().UTC(),
	}
	if n := len(attempts); n > 0 {
		alert.LastError = attempts[n-1].ErrorMessage
	}

	body, err := json.Marshal(alert)
	if err != nil {
		return apperrors.NewAlertPublishFailedError(fmt.Errorf("encode alert: %w", err))
	}

	out, err := p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Subject:  aws.String(subjectExhausted),
		Message:  aws.String(string(body)),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"errorCode": {
				DataType:    aws.String("String"),
				StringValue: aws.String(alert.ErrorCode),
			},
		},
	})
	if err != nil {
		return apperrors.NewAlertPublishFailedError(err)
	}

	p.log.Info("Exhausted-fallback alert published", map[string]interface{}{
		"messageId": aws.ToString(out.MessageId),
		"attempts":  len(attempts),
	})
	return nil
}
