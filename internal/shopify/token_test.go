package shopify

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/security"
)

type memDDB struct {
	items map[string]map[string]types.AttributeValue
}

func keyOf(m map[string]types.AttributeValue) string {
	pk := m["PK"].(*types.AttributeValueMemberS).Value
	sk := m["SK"].(*types.AttributeValueMemberS).Value
	return pk + "|" + sk
}

func (m *memDDB) GetItem(_ context.Context, in *dynamodb.GetItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	return &dynamodb.GetItemOutput{Item: m.items[keyOf(in.Key)]}, nil
}

func (m *memDDB) PutItem(_ context.Context, in *dynamodb.PutItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if m.items == nil {
		m.items = map[string]map[string]types.AttributeValue{}
	}
	m.items[keyOf(in.Item)] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (m *memDDB) DeleteItem(_ context.Context, in *dynamodb.DeleteItemInput, _ ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error) {
	delete(m.items, keyOf(in.Key))
	return &dynamodb.DeleteItemOutput{}, nil
}

func (m *memDDB) Query(context.Context, *dynamodb.QueryInput, ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	return &dynamodb.QueryOutput{}, nil
}

func (m *memDDB) Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error) {
	return &dynamodb.ScanOutput{}, nil
}

func testCipher(t *testing.T) *security.TokenCipher {
	t.Helper()
	k := make([]byte, 32)
	if _, err := rand.Read(k); err != nil {
		t.Fatal(err)
	}
	c, err := security.NewTokenCipher(base64.StdEncoding.EncodeToString(k))
	if err != nil {
		t.Fatal(err)
	}
	return c
}

func TestTokenStoreRoundTrip(t *testing.T) {
	ddb := &memDDB{}
	s := &TokenStore{DB: ddb, Table: "integrations", Cipher: testCipher(t)}
	ctx := context.Background()

	if err := s.Save(ctx, " Test-Shop.myshopify.com ", "shpat_secret", "write_orders"); err != nil {
		t.Fatal(err)
	}

	stored := ddb.items["SHOP#test-shop.myshopify.com|SHOPIFY"]
	if stored == nil {
		t.Fatalf("items = %v", ddb.items)
	}
	enc := stored["AccessTokenEnc"].(*types.AttributeValueMemberS).Value
	if strings.Contains(enc, "shpat_secret") {
		t.Fatal("token stored in plaintext")
	}

	tok, item, err := s.Load(ctx, "test-shop.myshopify.com")
	if err != nil {
		t.Fatal(err)
	}
	if tok != "shpat_secret" || item.Scope != "write_orders" {
		t.Fatalf("tok=%q item=%+v", tok, item)
	}
}

func TestTokenStoreNotConnected(t *testing.T) {
	s := &TokenStore{DB: &memDDB{}, Table: "integrations", Cipher: testCipher(t)}
	if _, _, err := s.Load(context.Background(), "nope.myshopify.com"); err == nil {
		t.Fatal("expected error")
	}
}

func TestTokenStoreWrongKey(t *testing.T) {
	ddb := &memDDB{}
	ctx := context.Background()
	if err := (&TokenStore{DB: ddb, Table: "t", Cipher: testCipher(t)}).Save(ctx, "a.myshopify.com", "tok", ""); err != nil {
		t.Fatal(err)
	}
	if _, _, err := (&TokenStore{DB: ddb, Table: "t", Cipher: testCipher(t)}).Load(ctx, "a.myshopify.com"); err == nil {
		t.Fatal("expected decrypt failure")
	}
}
