package main

import (
	"github.com/aws/aws-lambda-go/lambda"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/handlers"
)

func main() {
	lambda.Start(handlers.Health)
}
