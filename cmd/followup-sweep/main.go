package main

import (
	"context"
	"log"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/app"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/reconcile"
)

func main() {
	ctx := context.Background()

	a, err := app.Bootstrap(ctx, "ink-followup-sweep")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	o, err := a.Orchestrator(ctx, a.Queue())
	if err != nil {
		log.Fatalf("orchestrator: %v", err)
	}

	lambda.Start(func(ctx context.Context, _ events.CloudWatchEvent) (*reconcile.SweepReport, error) {
		rep, err := o.Sweep(ctx)
		if err != nil {
			a.Log.Error("sweep failed", slog.Any("err", err))
			return rep, err
		}
		a.Log.Info("sweep done",
			slog.Int("candidates", rep.Candidates),
			slog.Int("reminded", rep.Reminded),
			slog.Int("skipped", rep.Skipped),
			slog.Int("failed", rep.Failed))
		return rep, nil
	})
}
