package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/app"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/etl"
)

func main() {
	ctx := context.Background()

	a, err := app.Bootstrap(ctx, "ink-etl-daily-metrics")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	h, err := a.MetricsETL()
	if err != nil {
		log.Fatalf("etl: %v", err)
	}

	lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) (*etl.RunReport, error) {
		return h.Run(ctx)
	})
}
