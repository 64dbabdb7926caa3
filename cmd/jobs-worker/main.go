package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/app"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/reconcile"
)

// The worker consumes the SQS queue subscribed to the jobs topic. Jobs it
// enqueues itself (a notice after a proof sync) go back through the topic.
func main() {
	ctx := context.Background()

	a, err := app.Bootstrap(ctx, "ink-jobs-worker")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	o, err := a.Orchestrator(ctx, a.Queue())
	if err != nil {
		log.Fatalf("orchestrator: %v", err)
	}
	w := &reconcile.Worker{O: o}
	lambda.Start(w.HandleSQS)
}
