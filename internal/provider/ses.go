package provider

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESProvider sends email through AWS SES v2.
type SESProvider struct {
	client      *sesv2.Client
	defaultFrom string
	retry       RetryConfig
}

// NewSESProvider loads AWS credentials/region the default way via
// aws-sdk-go-v2/config.
func NewSESProvider(ctx context.Context, region, defaultFrom string) (*SESProvider, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}

	return &SESProvider{
		client:      sesv2.NewFromConfig(cfg),
		defaultFrom: defaultFrom,
		retry:       DefaultRetryConfig(),
	}, nil
}

// Send delivers one email via SendEmail, retrying internally on failure.
func (p *SESProvider) Send(ctx context.Context, data EmailData) (Result, error) {
	return withRetry(ctx, p.retry, func(ctx context.Context) (Result, error) {
		return p.sendOnce(ctx, data)
	})
}

// fromAddress resolves the SES sender: an outbox-supplied override if
// present, otherwise the provider's configured default sender.
func fromAddress(data EmailData, defaultFrom string) string {
	if data.FromEmail != "" {
		return data.FromEmail
	}
	return defaultFrom
}

func (p *SESProvider) sendOnce(ctx context.Context, data EmailData) (Result, error) {
	from := fromAddress(data, p.defaultFrom)

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses:  []string{data.To},
			CcAddresses:  data.CC,
			BccAddresses: data.BCC,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(data.Subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(data.Body)},
				},
			},
		},
	}
	if data.ReplyTo != "" {
		input.ReplyToAddresses = []string{data.ReplyTo}
	}

	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		return Result{}, fmt.Errorf("ses send email: %w", err)
	}

	return Result{Success: true, MessageID: aws.ToString(out.MessageId)}, nil
}
