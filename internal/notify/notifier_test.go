package notify

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"brickkit/internal/common/config"
	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

type fakeSES struct {
	inputs []*ses.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &ses.SendEmailOutput{}, nil
}

type fakeSNS struct {
	inputs []*sns.PublishInput
	err    error
}

func (f *fakeSNS) Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error) {
	f.inputs = append(f.inputs, params)
	if f.err != nil {
		return nil, f.err
	}
	return &sns.PublishOutput{}, nil
}

func notifyConfig(email, topic bool) *config.NotificationConfig {
	cfg := &config.NotificationConfig{}
	cfg.Email.Enabled = email
	cfg.Email.FromEmail = "noreply@example.com"
	cfg.Email.ToEmail = "builder@example.com"
	cfg.SNS.Enabled = topic
	cfg.SNS.TopicARN = "arn:aws:sns:us-east-1:000000000000:model-requests"
	cfg.AWS.Region = "us-east-1"
	return cfg
}

func completedResult() *models.PipelineResult {
	now := time.Now().UTC()
	return &models.PipelineResult{
		RequestID: "req-42",
		Prompt:    "red race car",
		Status:    models.StatusCompleted,
		Selection: &models.SelectionResult{
			Candidate: models.CandidateModel{SetNumber: "8070", Name: "Supercar"},
		},
		Document:   &models.Document{Path: "/out/8070_Supercar_Instructions.pdf", PageCount: 5},
		StartedAt:  now.Add(-time.Minute),
		FinishedAt: now,
	}
}

func TestNotifyCompletionBothChannels(t *testing.T) {
	sesClient := &fakeSES{}
	snsClient := &fakeSNS{}
	n := NewWithClients(notifyConfig(true, true), sesClient, snsClient, logger.NewTestLogger(t))

	err := n.NotifyCompletion(context.Background(), completedResult())
	require.NoError(t, err)

	require.Len(t, sesClient.inputs, 1)
	email := sesClient.inputs[0]
	assert.Equal(t, "noreply@example.com", *email.Source)
	assert.Equal(t, []string{"builder@example.com"}, email.Destination.ToAddresses)
	assert.Contains(t, *email.Message.Subject.Data, "req-42")
	assert.Contains(t, *email.Message.Body.Text.Data, "8070")

	require.Len(t, snsClient.inputs, 1)
	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(*snsClient.inputs[0].Message), &payload))
	assert.Equal(t, "req-42", payload["requestId"])
	assert.Equal(t, "completed", payload["status"])
	assert.Equal(t, "8070", payload["setNumber"])
	assert.Equal(t, "/out/8070_Supercar_Instructions.pdf", payload["documentPath"])
}

func TestNotifyCompletionDisabledChannelsSendNothing(t *testing.T) {
	sesClient := &fakeSES{}
	snsClient := &fakeSNS{}
	n := NewWithClients(notifyConfig(false, false), sesClient, snsClient, logger.NewTestLogger(t))

	require.NoError(t, n.NotifyCompletion(context.Background(), completedResult()))
	assert.Empty(t, sesClient.inputs)
	assert.Empty(t, snsClient.inputs)
}

func TestNotifyCompletionOneChannelFailureStillSendsOther(t *testing.T) {
	sesClient := &fakeSES{}
	snsClient := &fakeSNS{err: errors.New("throttled")}
	n := NewWithClients(notifyConfig(true, true), sesClient, snsClient, logger.NewTestLogger(t))

	err := n.NotifyCompletion(context.Background(), completedResult())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotificationSendFailed)
	assert.Equal(t, stderrors.ErrCodeNotificationSendFailed, stderrors.CodeOf(err))
	assert.True(t, stderrors.IsRetryable(err))
	assert.Len(t, sesClient.inputs, 1)
}

func TestNotifyCompletionNoMatchOmitsSelection(t *testing.T) {
	snsClient := &fakeSNS{}
	n := NewWithClients(notifyConfig(false, true), nil, snsClient, logger.NewTestLogger(t))

	result := completedResult()
	result.Status = models.StatusNoMatch
	result.Selection = nil
	result.Document = nil

	require.NoError(t, n.NotifyCompletion(context.Background(), result))
	require.Len(t, snsClient.inputs, 1)

	var payload map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(*snsClient.inputs[0].Message), &payload))
	assert.Equal(t, "no_match", payload["status"])
	_, hasSet := payload["setNumber"]
	assert.False(t, hasSet)
}
