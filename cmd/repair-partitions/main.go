package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/app"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/etl"
)

func main() {
	a, err := app.Bootstrap(context.Background(), "ink-repair-partitions")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}

	lambda.Start(func(ctx context.Context) (etl.RepairResult, error) {
		res, err := a.RepairPartitions(ctx)
		if err != nil {
			a.Log.Error("repair failed", slog.String("query_id", res.QueryID), slog.Any("err", err))
			return res, err
		}
		a.Log.Info("repair succeeded", slog.String("query_id", res.QueryID))
		return res, nil
	})
}
