package notify

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

type AlertsAdmin interface {
	CreateTopic(ctx context.Context, params *sns.CreateTopicInput, optFns ...func(*sns.Options)) (*sns.CreateTopicOutput, error)
	Subscribe(ctx context.Context, params *sns.SubscribeInput, optFns ...func(*sns.Options)) (*sns.SubscribeOutput, error)
}

// AlertsTopicName is stable per (stage, shop); SNS topic names allow no dots.
func AlertsTopicName(stage, shop string) string {
	if stage == "" {
		stage = "dev"
	}
	h := sha256.Sum256([]byte(strings.ToLower(strings.TrimSpace(shop))))
	return fmt.Sprintf("ink-merchant-alerts-%s-%s", stage, hex.EncodeToString(h[:8]))
}

// EnsureMerchantAlerts creates (or reuses, CreateTopic is idempotent) the
// shop's flagged-delivery topic and subscribes the merchant's e-mail. The
// subscription stays pending until the merchant clicks the confirm link.
func EnsureMerchantAlerts(ctx context.Context, api AlertsAdmin, stage, shop, email string) (string, error) {
	shop = strings.TrimSpace(shop)
	email = strings.TrimSpace(email)
	if shop == "" || email == "" {
		return "", errors.New("shop and email are required")
	}

	ct, err := api.CreateTopic(ctx, &sns.CreateTopicInput{
		Name: aws.String(AlertsTopicName(stage, shop)),
	})
	if err != nil {
		return "", fmt.Errorf("create alerts topic: %w", err)
	}
	topicARN := aws.ToString(ct.TopicArn)

	_, err = api.Subscribe(ctx, &sns.SubscribeInput{
		TopicArn: aws.String(topicARN),
		Protocol: aws.String("email"),
		Endpoint: aws.String(email),
	})
	if err != nil {
		return topicARN, fmt.Errorf("subscribe %s: %w", email, err)
	}
	return topicARN, nil
}
