package queue

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sqs"

	"github.com/alfredjeanlab/livetimeline/internal/config"
)

// SQS receive parameters. WaitTimeSeconds=20 is the SQS long-poll maximum.
const (
	sqsMaxMessages = 10
	sqsWaitSeconds = 20
)

// sqsAPI is the subset of *sqs.Client the backend uses.
type sqsAPI interface {
	ReceiveMessage(ctx context.Context, in *sqs.ReceiveMessageInput, optFns ...func(*sqs.Options)) (*sqs.ReceiveMessageOutput, error)
	DeleteMessage(ctx context.Context, in *sqs.DeleteMessageInput, optFns ...func(*sqs.Options)) (*sqs.DeleteMessageOutput, error)
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// SQSBackend long-polls an SQS queue. Messages are deleted only on Ack.
type SQSBackend struct {
	client   sqsAPI
	queueURL string
}

// NewSQSBackend creates an SQS client from static credentials in s. If
// s.Endpoint is set it overrides the service endpoint (LocalStack, ElasticMQ).
func NewSQSBackend(ctx context.Context, s config.Settings) (*SQSBackend, error) {
	region := s.Region
	if region == "" {
		region = config.DefaultRegion
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(s.AccessKeyID, s.SecretAccessKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	var opts []func(*sqs.Options)
	if s.Endpoint != "" {
		opts = append(opts, func(o *sqs.Options) {
			o.BaseEndpoint = aws.String(s.Endpoint)
		})
	}

	return newSQSBackend(sqs.NewFromConfig(cfg, opts...), s.QueueURL), nil
}

func newSQSBackend(client sqsAPI, queueURL string) *SQSBackend {
	return &SQSBackend{client: client, queueURL: queueURL}
}

func (b *SQSBackend) Receive(ctx context.Context) ([]*Message, error) {
	out, err := b.client.ReceiveMessage(ctx, &sqs.ReceiveMessageInput{
		QueueUrl:            aws.String(b.queueURL),
		MaxNumberOfMessages: sqsMaxMessages,
		WaitTimeSeconds:     sqsWaitSeconds,
	})
	if err != nil {
		return nil, fmt.Errorf("sqs receive: %w", err)
	}

	msgs := make([]*Message, 0, len(out.Messages))
	for _, m := range out.Messages {
		msgs = append(msgs, &Message{
			ID:      aws.ToString(m.MessageId),
			Body:    []byte(aws.ToString(m.Body)),
			Receipt: aws.ToString(m.ReceiptHandle),
		})
	}
	return msgs, nil
}

// Ack deletes the message from the queue by its receipt handle.
func (b *SQSBackend) Ack(ctx context.Context, m *Message) error {
	_, err := b.client.DeleteMessage(ctx, &sqs.DeleteMessageInput{
		QueueUrl:      aws.String(b.queueURL),
		ReceiptHandle: aws.String(m.Receipt),
	})
	if err != nil {
		return fmt.Errorf("sqs delete %s: %w", m.ID, err)
	}
	return nil
}

func (b *SQSBackend) Send(ctx context.Context, body []byte) error {
	_, err := b.client.SendMessage(ctx, &sqs.SendMessageInput{
		QueueUrl:    aws.String(b.queueURL),
		MessageBody: aws.String(string(body)),
	})
	if err != nil {
		return fmt.Errorf("sqs send: %w", err)
	}
	return nil
}

// LongPoll reports true: Receive waits up to 20s server-side.
func (b *SQSBackend) LongPoll() bool { return true }

// Close is a no-op; the SDK client holds no resources that need releasing.
func (b *SQSBackend) Close() error { return nil }
