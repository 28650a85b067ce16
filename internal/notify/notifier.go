// Package notify publishes completion summaries for finished pipeline
// requests: an SNS topic message for downstream consumers and optionally an
// email with the document reference. Disabled by default; failures here are
// logged and never affect the pipeline result.
package notify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"

	"brickkit/internal/common/config"
	stderrors "brickkit/internal/common/errors"
	"brickkit/internal/common/logger"
	"brickkit/internal/models"
)

var ErrNotificationSendFailed = errors.New("NOTIFICATION_SEND_FAILED")

// SESService is the slice of the SES client we use, so tests can fake it.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// SNSService is the slice of the SNS client we use.
type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Notifier struct {
	config *config.NotificationConfig
	ses    SESService
	sns    SNSService
	logger logger.Logger
}

// New builds a notifier from the AWS default credential chain. Returns a
// disabled notifier when neither channel is turned on.
func New(ctx context.Context, cfg *config.NotificationConfig, log logger.Logger) (*Notifier, error) {
	n := &Notifier{
		config: cfg,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
	if !cfg.Email.Enabled && !cfg.SNS.Enabled {
		return n, nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWS.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	if cfg.Email.Enabled {
		n.ses = ses.NewFromConfig(awsCfg)
	}
	if cfg.SNS.Enabled {
		n.sns = sns.NewFromConfig(awsCfg)
	}
	return n, nil
}

// NewWithClients wires explicit service clients; used by tests.
func NewWithClients(cfg *config.NotificationConfig, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config: cfg,
		ses:    sesClient,
		sns:    snsClient,
		logger: log.WithFields(map[string]interface{}{"component": "notify"}),
	}
}

// NotifyCompletion publishes a summary of a terminal result on every
// enabled channel. Errors from individual channels are joined so one bad
// channel does not silence the other.
func (n *Notifier) NotifyCompletion(ctx context.Context, result *models.PipelineResult) error {
	var errs []error

	if n.config.SNS.Enabled && n.sns != nil {
		if err := n.publishSNS(ctx, result); err != nil {
			n.logger.Error("sns publish failed", map[string]interface{}{
				"requestId": result.RequestID,
				"error":     err.Error(),
			})
			errs = append(errs, err)
		}
	}
	if n.config.Email.Enabled && n.ses != nil {
		if err := n.sendEmail(ctx, result); err != nil {
			n.logger.Error("email send failed", map[string]interface{}{
				"requestId": result.RequestID,
				"error":     err.Error(),
			})
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrNotificationSendFailed, stderrors.NewNotificationSendFailedError("completion", errors.Join(errs...)))
	}
	return nil
}

func (n *Notifier) publishSNS(ctx context.Context, result *models.PipelineResult) error {
	payload := map[string]interface{}{
		"requestId": result.RequestID,
		"prompt":    result.Prompt,
		"status":    string(result.Status),
	}
	if result.Selection != nil {
		payload["setNumber"] = result.Selection.Candidate.SetNumber
		payload["setName"] = result.Selection.Candidate.Name
	}
	if result.Document != nil {
		payload["documentPath"] = result.Document.Path
	}
	message, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	_, err = n.sns.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(n.config.SNS.TopicARN),
		Message:  aws.String(string(message)),
	})
	return err
}

func (n *Notifier) sendEmail(ctx context.Context, result *models.PipelineResult) error {
	subject := fmt.Sprintf("Model request %s: %s", result.RequestID, result.Status)
	body := fmt.Sprintf("Prompt: %s\nStatus: %s\n", result.Prompt, result.Status)
	if result.Selection != nil {
		body += fmt.Sprintf("Set: %s (%s)\n", result.Selection.Candidate.SetNumber, result.Selection.Candidate.Name)
	}
	if result.Document != nil {
		body += fmt.Sprintf("Instructions: %s\n", result.Document.Path)
	}

	_, err := n.ses.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{n.config.Email.ToEmail},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.Email.FromEmail),
	})
	return err
}
