package main

import (
	"context"
	"log"

	"giftbackend/internal/export"

	"github.com/aws/aws-lambda-go/lambda"
	"github.com/aws/aws-sdk-go-v2/config"
)

func main() {
	ctx := context.Background()

	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		log.Fatalf("load aws config: %v", err)
	}

	h := export.NewSettlementExport(cfg)
	lambda.Start(h.Handle)
}
