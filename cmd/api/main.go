package main

import (
	"context"
	"log"

	"github.com/aws/aws-lambda-go/lambda"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/app"
)

func main() {
	ctx := context.Background()

	a, err := app.Bootstrap(ctx, "ink-api")
	if err != nil {
		log.Fatalf("bootstrap: %v", err)
	}
	o, err := a.Orchestrator(ctx, a.Queue())
	if err != nil {
		log.Fatalf("orchestrator: %v", err)
	}
	lambda.Start(a.API(o).Handle)
}
