package alerts

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	awsclient "nlq-resolver/internal/common/aws"
	apperrors "nlq-resolver/internal/common/errors"
	"nlq-resolver/internal/common/logger"
	"nlq-resolver/internal/models"
)

type fakeSNS struct {
	input *sns.PublishInput
	err   error
}

func (f *fakeSNS) Publish(_ context.Context, input *sns.PublishInput, _ ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.input = input
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{MessageId: aws.String("msg-1")}, nil
}

func (f *fakeSNS) GetTopicAttributes(context.Context, *sns.GetTopicAttributesInput, ...func(*sns.Options)) (*sns.GetTopicAttributesOutput, error) {
	return &sns.GetTopicAttributesOutput{}, nil
}

func TestPublishExhausted_SendsAlert(t *testing.T) {
	api := &fakeSNS{}
	p := NewSNSPublisher(awsclient.NewSNSClientWithAPI(api), "arn:aws:sns:eu-west-1:123:nlq", "nlq-resolver", logger.NewTestLogger(t))

	attempts := []models.FallbackAttempt{
		{AttemptNumber: 1, Strategy: "primary", SQLAttempted: "SELECT x FROM t", ErrorMessage: "boom"},
		{AttemptNumber: 2, Strategy: "basic_select", SQLAttempted: "SELECT * FROM t LIMIT 10", ErrorMessage: "relation t does not exist"},
	}
	require.NoError(t, p.PublishExhausted(context.Background(), "SELECT x FROM t", attempts))

	require.NotNil(t, api.input)
	assert.Equal(t, "arn:aws:sns:eu-west-1:123:nlq", aws.ToString(api.input.TopicArn))
	assert.Equal(t, "EXHAUSTED_FALLBACKS", aws.ToString(api.input.MessageAttributes["errorCode"].StringValue))

	var alert ExhaustedAlert
	require.NoError(t, json.Unmarshal([]byte(aws.ToString(api.input.Message)), &alert))
	assert.Equal(t, "SELECT x FROM t", alert.SQL)
	assert.Equal(t, "relation t does not exist", alert.LastError)
	assert.Len(t, alert.Attempts, 2)
}

func TestPublishExhausted_WrapsPublishError(t *testing.T) {
	api := &fakeSNS{err: errors.New("throttled")}
	p := NewSNSPublisher(awsclient.NewSNSClientWithAPI(api), "arn", "nlq-resolver", logger.NewNoOpLogger())

	err := p.PublishExhausted(context.Background(), "SELECT 1", nil)
	stdErr, ok := apperrors.AsStandardError(err)
	require.True(t, ok)
	assert.Equal(t, apperrors.ErrCodeAlertPublishFailed, stdErr.Code)
}
