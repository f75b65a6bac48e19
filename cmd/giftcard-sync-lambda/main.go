package main

import (
	"context"
	"time"

	"giftbackend/internal/alerts"
	"giftbackend/internal/db"
	"giftbackend/internal/shops"
	"giftbackend/internal/sync"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog/log"
)

// Same pipeline as the CLI runner, triggered by an EventBridge schedule.
func handler(ctx context.Context, _ events.CloudWatchEvent) (map[string]any, error) {
	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		return nil, err
	}

	store, err := sync.NewDynamoStore(ddb)
	if err != nil {
		return nil, err
	}

	runner := &sync.Runner{
		Store:   store,
		Shops:   shops.Source{DDB: ddb},
		Fetcher: sync.ShopifyFetcher{},
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		return nil, err
	}

	if topic := alerts.TopicArn(); topic != "" {
		cfg, cfgErr := config.LoadDefaultConfig(ctx)
		if cfgErr != nil {
			log.Warn().Err(cfgErr).Msg("giftcard-sync: cannot init sns, alert skipped")
		} else if pubErr := alerts.PublishRunSummary(ctx, sns.NewFromConfig(cfg), topic, summary); pubErr != nil {
			log.Warn().Err(pubErr).Msg("giftcard-sync: alert publish failed")
		}
	}

	return map[string]any{
		"ok":                  true,
		"run_id":              summary.RunID,
		"shops":               summary.Shops,
		"cards":               summary.Cards,
		"transactions":        summary.Transactions,
		"new_redemptions":     summary.NewRedemptions,
		"new_value":           summary.NewValue,
		"skipped_duplicates":  summary.SkippedDuplicates,
		"skipped_no_id":       summary.SkippedNoID,
		"settlements_updated": summary.SettlementsUpdated,
		"failures":            summary.Failures,
		"elapsed":             summary.Duration.Round(time.Millisecond).String(),
	}, nil
}

func main() { lambda.Start(handler) }
