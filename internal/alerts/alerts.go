package alerts

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"giftbackend/internal/sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// SNSClient is the slice of the SNS API this package needs.
type SNSClient interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

func TopicArn() string {
	return strings.TrimSpace(os.Getenv("SYNC_ALERTS_TOPIC_ARN"))
}

// PublishRunSummary sends the run summary to the ops topic. Callers only
// invoke this when a topic is configured; a run with failures should always
// be published so partial failures stay visible.
func PublishRunSummary(ctx context.Context, client SNSClient, topicArn string, s *sync.RunSummary) error {
	subject := fmt.Sprintf("giftcard-sync: %d new redemptions, %d failures", s.NewRedemptions, len(s.Failures))

	lines := []string{
		"Gift Card Reconciliation Run",
		"",
		fmt.Sprintf("RunId: %s", s.RunID),
		fmt.Sprintf("StartedAt: %s", s.StartedAt.Format(time.RFC3339)),
		fmt.Sprintf("Duration: %s", s.Duration.Round(time.Millisecond)),
		fmt.Sprintf("Shops: %d", s.Shops),
		fmt.Sprintf("Cards: %d", s.Cards),
		fmt.Sprintf("Transactions: %d", s.Transactions),
		fmt.Sprintf("NewRedemptions: %d (%.2f)", s.NewRedemptions, s.NewValue),
		fmt.Sprintf("SkippedDuplicates: %d", s.SkippedDuplicates),
		fmt.Sprintf("SkippedNoId: %d", s.SkippedNoID),
		fmt.Sprintf("SettlementsUpdated: %d", s.SettlementsUpdated),
	}
	if len(s.Failures) > 0 {
		lines = append(lines, "", "Failures:")
		for _, f := range s.Failures {
			lines = append(lines, "- "+f)
		}
	}

	_, err := client.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(topicArn),
		Subject:  aws.String(subject),
		Message:  aws.String(strings.Join(lines, "\n")),
	})
	if err != nil {
		return fmt.Errorf("sns publish run summary: %w", err)
	}
	return nil
}
