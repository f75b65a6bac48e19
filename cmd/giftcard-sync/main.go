package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"giftbackend/internal/alerts"
	"giftbackend/internal/db"
	"giftbackend/internal/shops"
	"giftbackend/internal/sync"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	windowDays := flag.Int("window-days", 30, "trailing updated_at window for gift card discovery")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if *verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx := context.Background()

	ddb, err := db.NewDynamoClient(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "giftcard-sync: init dynamodb: %v\n", err)
		os.Exit(1)
	}

	store, err := sync.NewDynamoStore(ddb)
	if err != nil {
		fmt.Fprintf(os.Stderr, "giftcard-sync: %v\n", err)
		os.Exit(1)
	}

	runner := &sync.Runner{
		Store:   store,
		Shops:   shops.Source{DDB: ddb},
		Fetcher: sync.ShopifyFetcher{},
		Window:  time.Duration(*windowDays) * 24 * time.Hour,
	}

	summary, err := runner.Run(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "giftcard-sync: %v\n", err)
		os.Exit(1)
	}

	publishAlert(ctx, summary)

	fmt.Printf("run %s finished in %s\n", summary.RunID, summary.Duration.Round(time.Millisecond))
	fmt.Printf("  shops: %d  cards: %d  transactions: %d\n", summary.Shops, summary.Cards, summary.Transactions)
	fmt.Printf("  new redemptions: %d (%.2f)\n", summary.NewRedemptions, summary.NewValue)
	fmt.Printf("  skipped: %d duplicates, %d without id\n", summary.SkippedDuplicates, summary.SkippedNoID)
	fmt.Printf("  settlements updated: %d\n", summary.SettlementsUpdated)
	if len(summary.Failures) > 0 {
		fmt.Printf("  failures (%d):\n", len(summary.Failures))
		for _, f := range summary.Failures {
			fmt.Printf("    - %s\n", f)
		}
	}
}

func publishAlert(ctx context.Context, summary *sync.RunSummary) {
	topic := alerts.TopicArn()
	if topic == "" {
		return
	}

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Warn().Err(err).Msg("giftcard-sync: cannot init sns, alert skipped")
		return
	}
	if err := alerts.PublishRunSummary(ctx, sns.NewFromConfig(cfg), topic, summary); err != nil {
		log.Warn().Err(err).Msg("giftcard-sync: alert publish failed")
	}
}
