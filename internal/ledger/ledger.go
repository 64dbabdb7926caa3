// Package ledger is the DynamoDB index of verification state used for the
// follow-up sweep, notification dedupe and Shopify webhook dedupe. Order
// metafields stay the state mirror; nothing here overrides the authority.
package ledger

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/db"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/lifecycle"
)

const (
	stateSK         = "STATE"
	defaultIndex    = "GSI1"
	webhookTTL      = 7 * 24 * time.Hour
	timestampLayout = time.RFC3339
)

// Entry is one order's row in the ledger.
type Entry struct {
	PK             string `dynamodbav:"PK"`
	SK             string `dynamodbav:"SK"`
	Shop           string `dynamodbav:"Shop"`
	OrderGid       string `dynamodbav:"OrderGid"`
	Status         string `dynamodbav:"Status"`
	NfcUid         string `dynamodbav:"NfcUid,omitempty"`
	ProofId        string `dynamodbav:"ProofId,omitempty"`
	EnrolledAt     string `dynamodbav:"EnrolledAt,omitempty"`
	VerifiedAt     string `dynamodbav:"VerifiedAt,omitempty"`
	FlaggedAt      string `dynamodbav:"FlaggedAt,omitempty"`
	FollowupSentAt string `dynamodbav:"FollowupSentAt,omitempty"`
	UpdatedAt      string `dynamodbav:"UpdatedAt"`
	GSI1PK         string `dynamodbav:"GSI1PK"`
	GSI1SK         string `dynamodbav:"GSI1SK"`
}

type Store struct {
	DB    db.API
	Table string
	Shop  string
	Index string
	Now   func() time.Time
}

func New(api db.API, table, shop string) *Store {
	return &Store{DB: api, Table: table, Shop: shop, Index: defaultIndex, Now: time.Now}
}

func (s *Store) now() time.Time {
	if s.Now == nil {
		return time.Now().UTC()
	}
	return s.Now().UTC()
}

func orderPK(gid string) string { return "ORDER#" + gid }

func statusPK(st lifecycle.Status) string { return "STATUS#" + string(st) }

func (s *Store) Get(ctx context.Context, gid string) (*Entry, error) {
	out, err := s.DB.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.Table),
		Key:            db.Key(orderPK(gid), stateSK),
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("ledger get %s: %w", gid, err)
	}
	if out.Item == nil {
		return nil, nil
	}
	var e Entry
	if err := attributevalue.UnmarshalMap(out.Item, &e); err != nil {
		return nil, fmt.Errorf("ledger decode %s: %w", gid, err)
	}
	return &e, nil
}

func (s *Store) put(ctx context.Context, e *Entry) error {
	item, err := attributevalue.MarshalMap(e)
	if err != nil {
		return err
	}
	_, err = s.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.Table),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("ledger put %s: %w", e.OrderGid, err)
	}
	return nil
}

// RecordEnrollment indexes a freshly enrolled order for the follow-up sweep.
func (s *Store) RecordEnrollment(ctx context.Context, gid, nfcUID, proofID string) error {
	return s.SetStatus(ctx, gid, lifecycle.Enrolled, func(e *Entry) {
		e.NfcUid = nfcUID
		e.ProofId = proofID
	})
}

// SetStatus moves the ledger row to st, following the same lattice as the
// metafields. A disallowed move is ignored.
func (s *Store) SetStatus(ctx context.Context, gid string, st lifecycle.Status, mutate func(*Entry)) error {
	e, err := s.Get(ctx, gid)
	if err != nil {
		return err
	}
	now := s.now().Format(timestampLayout)
	if e == nil {
		e = &Entry{PK: orderPK(gid), SK: stateSK, Shop: s.Shop, OrderGid: gid}
	} else if !lifecycle.Allows(lifecycle.Parse(e.Status), st) {
		return nil
	}

	switch st {
	case lifecycle.Enrolled:
		if e.EnrolledAt == "" {
			e.EnrolledAt = now
		}
	case lifecycle.Verified:
		if e.VerifiedAt == "" {
			e.VerifiedAt = now
		}
	case lifecycle.Flagged:
		if e.FlaggedAt == "" {
			e.FlaggedAt = now
		}
	}
	e.Status = string(st)
	e.UpdatedAt = now
	e.GSI1PK = statusPK(st)
	e.GSI1SK = e.EnrolledAt
	if e.GSI1SK == "" {
		e.GSI1SK = now
	}
	if mutate != nil {
		mutate(e)
	}
	return s.put(ctx, e)
}

func (s *Store) MarkFollowupSent(ctx context.Context, gid string) error {
	e, err := s.Get(ctx, gid)
	if err != nil || e == nil {
		return err
	}
	if e.FollowupSentAt != "" {
		return nil
	}
	e.FollowupSentAt = s.now().Format(timestampLayout)
	e.UpdatedAt = e.FollowupSentAt
	return s.put(ctx, e)
}

// ListStaleEnrolled returns entries still enrolled whose EnrolledAt lies in
// [now-maxAge, now-minAge].
func (s *Store) ListStaleEnrolled(ctx context.Context, minAge, maxAge time.Duration) ([]Entry, error) {
	now := s.now()
	lo := now.Add(-maxAge).Format(timestampLayout)
	hi := now.Add(-minAge).Format(timestampLayout)

	var out []Entry
	var start map[string]types.AttributeValue
	for {
		res, err := s.DB.Query(ctx, &dynamodb.QueryInput{
			TableName:              aws.String(s.Table),
			IndexName:              aws.String(s.Index),
			KeyConditionExpression: aws.String("GSI1PK = :pk AND GSI1SK BETWEEN :lo AND :hi"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":pk": db.S(statusPK(lifecycle.Enrolled)),
				":lo": db.S(lo),
				":hi": db.S(hi),
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("ledger query stale enrolled: %w", err)
		}
		var page []Entry
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		start = res.LastEvaluatedKey
	}
	return out, nil
}

// ScanAll returns every state row; the daily metrics job reads the table this way.
func (s *Store) ScanAll(ctx context.Context) ([]Entry, error) {
	var out []Entry
	var start map[string]types.AttributeValue
	for {
		res, err := s.DB.Scan(ctx, &dynamodb.ScanInput{
			TableName:        aws.String(s.Table),
			FilterExpression: aws.String("SK = :sk"),
			ExpressionAttributeValues: map[string]types.AttributeValue{
				":sk": db.S(stateSK),
			},
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("ledger scan: %w", err)
		}
		var page []Entry
		if err := attributevalue.UnmarshalListOfMaps(res.Items, &page); err != nil {
			return nil, err
		}
		for _, e := range page {
			if e.SK == stateSK {
				out = append(out, e)
			}
		}
		if len(res.LastEvaluatedKey) == 0 {
			break
		}
		start = res.LastEvaluatedKey
	}
	return out, nil
}

func (s *Store) claim(ctx context.Context, item map[string]types.AttributeValue) (bool, error) {
	_, err := s.DB.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(s.Table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		if db.IsConditionFailed(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// ClaimNotice returns true the first time it is called for (gid, kind).
func (s *Store) ClaimNotice(ctx context.Context, gid, kind string) (bool, error) {
	item := db.Key(orderPK(gid), "NOTICE#"+kind)
	item["Shop"] = db.S(s.Shop)
	item["CreatedAt"] = db.S(s.now().Format(timestampLayout))
	ok, err := s.claim(ctx, item)
	if err != nil {
		return false, fmt.Errorf("ledger claim notice %s/%s: %w", gid, kind, err)
	}
	return ok, nil
}

// ReleaseNotice drops a claim so a later attempt can send the notice.
func (s *Store) ReleaseNotice(ctx context.Context, gid, kind string) error {
	_, err := s.DB.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName: aws.String(s.Table),
		Key:       db.Key(orderPK(gid), "NOTICE#"+kind),
	})
	if err != nil {
		return fmt.Errorf("ledger release notice %s/%s: %w", gid, kind, err)
	}
	return nil
}

// ClaimWebhook returns (isDuplicate, error). Claims expire after seven days
// through the table's ExpiresAt TTL.
func (s *Store) ClaimWebhook(ctx context.Context, webhookID, topic string) (bool, error) {
	webhookID = strings.TrimSpace(webhookID)
	if webhookID == "" {
		return false, nil
	}
	now := s.now()
	item := db.Key("WH#"+webhookID, "WH")
	item["Shop"] = db.S(s.Shop)
	item["Topic"] = db.S(topic)
	item["CreatedAt"] = db.S(now.Format(timestampLayout))
	item["ExpiresAt"] = &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", now.Add(webhookTTL).Unix())}

	ok, err := s.claim(ctx, item)
	if err != nil {
		return false, fmt.Errorf("ledger claim webhook %s: %w", webhookID, err)
	}
	return !ok, nil
}
