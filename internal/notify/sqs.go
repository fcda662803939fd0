// Package notify arms the delayed trigger that closes an auction when its
// end time passes.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/aws/retry"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/aws/aws-sdk-go-v2/service/sqs/types"
	"github.com/google/uuid"

	"github.com/JonMunkholm/listing-import/internal/core"
	"github.com/JonMunkholm/listing-import/internal/logging"
)

// maxDelay is the longest DelaySeconds SQS accepts. Auctions ending later
// are delivered early and re-armed by the consumer using EndsAt.
const maxDelay = 15 * time.Minute

// SQSAPI is the subset of *sqs.Client used by the scheduler.
type SQSAPI interface {
	SendMessage(ctx context.Context, in *sqs.SendMessageInput, optFns ...func(*sqs.Options)) (*sqs.SendMessageOutput, error)
}

// Config tunes the scheduler.
type Config struct {
	QueueURL       string
	EndBuffer      time.Duration
	TargetFunction string
}

// ClientOptions tunes the SQS client. Retries use the SDK's standard
// retryer with jittered exponential backoff capped at MaxBackoff.
type ClientOptions struct {
	Endpoint      string
	RetryAttempts int
	MaxBackoff    time.Duration
}

// AuctionEnd is the message body consumed by the closing function.
type AuctionEnd struct {
	ListingID      string    `json:"listingId"`
	EndsAt         time.Time `json:"endsAt"`
	FireAt         time.Time `json:"fireAt"`
	TargetFunction string    `json:"targetFunction"`
}

// Scheduler implements core.AuctionScheduler on an SQS queue.
type Scheduler struct {
	client SQSAPI
	cfg    Config
	now    func() time.Time
}

var _ core.AuctionScheduler = (*Scheduler)(nil)

// NewSQSClient builds a client honoring a custom endpoint and retry policy.
func NewSQSClient(awsCfg aws.Config, opts ClientOptions, optFns ...func(*sqs.Options)) *sqs.Client {
	retryer := newRetryer(opts)
	fns := append([]func(*sqs.Options){func(o *sqs.Options) {
		if opts.Endpoint != "" {
			o.BaseEndpoint = aws.String(opts.Endpoint)
		}
		o.Retryer = retryer
	}}, optFns...)
	return sqs.NewFromConfig(awsCfg, fns...)
}

func newRetryer(opts ClientOptions) aws.Retryer {
	return retry.NewStandard(func(o *retry.StandardOptions) {
		if opts.RetryAttempts > 0 {
			o.MaxAttempts = opts.RetryAttempts
		}
		if opts.MaxBackoff > 0 {
			o.MaxBackoff = opts.MaxBackoff
		}
	})
}

func NewScheduler(client SQSAPI, cfg Config) *Scheduler {
	return &Scheduler{client: client, cfg: cfg, now: time.Now}
}

// ScheduleAuctionEnd sends one delayed message per auction. Transient
// failures are retried by the client's retryer.
func (s *Scheduler) ScheduleAuctionEnd(ctx context.Context, listingID uuid.UUID, endsAt time.Time) error {
	fireAt := endsAt.Add(s.cfg.EndBuffer)
	body, err := json.Marshal(AuctionEnd{
		ListingID:      listingID.String(),
		EndsAt:         endsAt.UTC(),
		FireAt:         fireAt.UTC(),
		TargetFunction: s.cfg.TargetFunction,
	})
	if err != nil {
		return fmt.Errorf("encode auction end: %w", err)
	}

	in := &sqs.SendMessageInput{
		QueueUrl:     aws.String(s.cfg.QueueURL),
		MessageBody:  aws.String(string(body)),
		DelaySeconds: delaySeconds(fireAt.Sub(s.now())),
		MessageAttributes: map[string]types.MessageAttributeValue{
			"listingId": {DataType: aws.String("String"), StringValue: aws.String(listingID.String())},
		},
	}

	if _, err := s.client.SendMessage(ctx, in); err != nil {
		return fmt.Errorf("schedule auction end for %s: %w", listingID, err)
	}
	logging.FromContext(ctx).Debug("auction end scheduled",
		"listing_id", listingID, "fire_at", fireAt, "delay_seconds", in.DelaySeconds)
	return nil
}

func delaySeconds(d time.Duration) int32 {
	if d <= 0 {
		return 0
	}
	if d > maxDelay {
		d = maxDelay
	}
	return int32(d / time.Second)
}
