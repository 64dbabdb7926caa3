package shopify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/db"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/security"
)

// IntegrationItem mirrors the DynamoDB record for a connected shop.
type IntegrationItem struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	Shop           string `dynamodbav:"Shop"`
	AccessTokenEnc string `dynamodbav:"AccessTokenEnc"`
	Scope          string `dynamodbav:"Scope"`
	CreatedAt      string `dynamodbav:"CreatedAt"`
	WebhooksAt     string `dynamodbav:"WebhooksAt,omitempty"`
}

// TokenStore keeps each shop's Admin API token encrypted at rest.
type TokenStore struct {
	DB     db.API
	Table  string
	Cipher *security.TokenCipher
}

func integrationKey(shop string) (string, string) {
	return "SHOP#" + shop, "SHOPIFY"
}

func (s *TokenStore) Save(ctx context.Context, shopDomain, accessToken, scope string) error {
	shopDomain = strings.ToLower(strings.TrimSpace(shopDomain))
	if shopDomain == "" {
		return errors.New("missing shop domain")
	}
	if strings.TrimSpace(accessToken) == "" {
		return errors.New("missing access token")
	}

	enc, err := s.Cipher.Seal(accessToken)
	if err != nil {
		return fmt.Errorf("encrypt token: %w", err)
	}
	pk, sk := integrationKey(shopDomain)
	item, err := attributevalue.MarshalMap(IntegrationItem{
		PK:             pk,
		SK:             sk,
		Shop:           shopDomain,
		AccessTokenEnc: enc,
		Scope:          scope,
		CreatedAt:      time.Now().UTC().Format(time.RFC3339),
	})
	if err != nil {
		return err
	}
	_, err = s.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.Table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("put integration %s: %w", shopDomain, err)
	}
	return nil
}

// Load returns the decrypted access token for a connected shop.
func (s *TokenStore) Load(ctx context.Context, shopDomain string) (string, *IntegrationItem, error) {
	shopDomain = strings.ToLower(strings.TrimSpace(shopDomain))
	if shopDomain == "" {
		return "", nil, errors.New("missing shop domain")
	}
	pk, sk := integrationKey(shopDomain)

	out, err := s.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.Table),
		Key:       db.Key(pk, sk),
	})
	if err != nil {
		return "", nil, err
	}
	if out.Item == nil {
		return "", nil, fmt.Errorf("shop not connected: %s", shopDomain)
	}

	var integ IntegrationItem
	if err := attributevalue.UnmarshalMap(out.Item, &integ); err != nil {
		return "", nil, err
	}
	enc := strings.TrimSpace(integ.AccessTokenEnc)
	if enc == "" {
		return "", nil, errors.New("no AccessTokenEnc on record")
	}
	token, err := s.Cipher.Open(enc)
	if err != nil {
		return "", nil, fmt.Errorf("failed to decrypt token: %w", err)
	}
	return token, &integ, nil
}
