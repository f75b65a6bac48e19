package alerts

import (
	"context"
	"testing"
	"time"

	"giftbackend/internal/sync"

	snssdk "github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSNS struct {
	published []*snssdk.PublishInput
}

func (f *fakeSNS) Publish(_ context.Context, in *snssdk.PublishInput, _ ...func(*snssdk.Options)) (*snssdk.PublishOutput, error) {
	f.published = append(f.published, in)
	return &snssdk.PublishOutput{}, nil
}

func TestPublishRunSummary(t *testing.T) {
	client := &fakeSNS{}
	sum := &sync.RunSummary{
		RunID:          "run-1",
		StartedAt:      time.Date(2026, 8, 28, 6, 0, 0, 0, time.UTC),
		Duration:       1500 * time.Millisecond,
		Shops:          2,
		Cards:          10,
		NewRedemptions: 3,
		NewValue:       45.5,
		Failures:       []string{"shop bad.myshopify.com: 401 unauthorized"},
	}

	err := PublishRunSummary(context.Background(), client, "arn:aws:sns:us-east-1:1:sync-alerts", sum)
	require.NoError(t, err)

	require.Len(t, client.published, 1)
	in := client.published[0]
	assert.Equal(t, "arn:aws:sns:us-east-1:1:sync-alerts", *in.TopicArn)
	assert.Equal(t, "giftcard-sync: 3 new redemptions, 1 failures", *in.Subject)

	msg := *in.Message
	assert.Contains(t, msg, "RunId: run-1")
	assert.Contains(t, msg, "NewRedemptions: 3 (45.50)")
	assert.Contains(t, msg, "Failures:")
	assert.Contains(t, msg, "- shop bad.myshopify.com: 401 unauthorized")
}

func TestTopicArnFromEnv(t *testing.T) {
	t.Setenv("SYNC_ALERTS_TOPIC_ARN", "  arn:aws:sns:us-east-1:1:topic  ")
	assert.Equal(t, "arn:aws:sns:us-east-1:1:topic", TopicArn())

	t.Setenv("SYNC_ALERTS_TOPIC_ARN", "")
	assert.Empty(t, TopicArn())
}
