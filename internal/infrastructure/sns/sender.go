package sns

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/go-verification-nosql/internal/config"
)

// EventVerificationEmail is the event type published for a verification email.
const EventVerificationEmail = "verification_email.requested"

// VerificationEmailEvent is the message body a downstream mail worker consumes.
type VerificationEmailEvent struct {
	Type            string `json:"type"`
	Email           string `json:"email"`
	Subject         string `json:"subject"`
	Body            string `json:"body"`
	ConfirmationURL string `json:"confirmation_url"`
}

// API is the subset of the SNS client used by Publisher.
type API interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Publisher hands verification emails to an SNS topic instead of sending them inline.
type Publisher struct {
	client   API
	topicARN string
}

func NewClient(cfg *config.Config) (*sns.Client, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(context.Background(),
		awsconfig.WithRegion(cfg.SNSRegion),
	)
	if err != nil {
		return nil, err
	}
	var opts []func(*sns.Options)
	if cfg.AWSEndpointURL != "" {
		opts = append(opts, func(o *sns.Options) { o.BaseEndpoint = aws.String(cfg.AWSEndpointURL) })
	}
	return sns.NewFromConfig(awsCfg, opts...), nil
}

func NewPublisher(client API, topicARN string) *Publisher {
	return &Publisher{client: client, topicARN: topicARN}
}

func (p *Publisher) Publish(ctx context.Context, ev VerificationEmailEvent) error {
	if ev.Type == "" {
		ev.Type = EventVerificationEmail
	}
	body, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	_, err = p.client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(p.topicARN),
		Message:  aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sns publish: %w", err)
	}
	return nil
}
