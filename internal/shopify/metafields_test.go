package shopify

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
)

type gqlCall struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

func newTestClient(t *testing.T, h func(w http.ResponseWriter, call gqlCall)) (*Client, *[]gqlCall) {
	t.Helper()
	var calls []gqlCall
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Shopify-Access-Token") != "shpat_test" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := io.ReadAll(r.Body)
		var c gqlCall
		if err := json.Unmarshal(body, &c); err != nil {
			t.Errorf("decode request: %v", err)
		}
		calls = append(calls, c)
		h(w, c)
	}))
	t.Cleanup(ts.Close)

	c := NewClient("test-shop.myshopify.com", "", "shpat_test", 2*time.Second)
	c.Endpoint = ts.URL + "/admin/api/2026-01/graphql.json"
	return c, &calls
}

func TestUpsertSendsOneMutation(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		io.WriteString(w, `{"data":{"metafieldsSet":{"metafields":[],"userErrors":[]}}}`)
	})
	s := NewSynchronizer(c)

	err := s.Upsert(context.Background(), "gid://shopify/Order/1", map[string]string{
		KeyStatus:      "verified",
		KeyDeliveryGPS: `{"lat":1,"lng":2}`,
		KeyGPSVerdict:  "",
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(*calls))
	}
	call := (*calls)[0]
	if !strings.Contains(call.Query, "metafieldsSet") {
		t.Fatalf("query = %s", call.Query)
	}
	mfs, _ := call.Variables["metafields"].([]any)
	if len(mfs) != 2 {
		t.Fatalf("metafields = %d, want 2 (blank skipped)", len(mfs))
	}
	for _, raw := range mfs {
		m := raw.(map[string]any)
		if m["namespace"] != MetafieldNamespace || m["ownerId"] != "gid://shopify/Order/1" {
			t.Errorf("bad input %v", m)
		}
		wantType := "single_line_text_field"
		if m["key"] == KeyDeliveryGPS {
			wantType = "json"
		}
		if m["type"] != wantType {
			t.Errorf("%v type = %v, want %s", m["key"], m["type"], wantType)
		}
	}
}

func TestUpsertNothingToWrite(t *testing.T) {
	c, calls := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		t.Error("unexpected request")
	})
	if err := NewSynchronizer(c).Upsert(context.Background(), "gid://shopify/Order/1", nil); err != nil {
		t.Fatal(err)
	}
	if len(*calls) != 0 {
		t.Fatalf("calls = %d", len(*calls))
	}
}

func TestUpsertUserErrorsArePartialSyncFailure(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		io.WriteString(w, `{"data":{"metafieldsSet":{"userErrors":[
			{"field":["metafields","1","value"],"message":"is invalid","code":"INVALID_VALUE"}
		]}}}`)
	})
	err := NewSynchronizer(c).Upsert(context.Background(), "gid://shopify/Order/1", map[string]string{
		KeyDeliveryGPS: "not json",
		KeyStatus:      "verified",
	})
	if apperr.KindOf(err) != apperr.PartialSyncFailure {
		t.Fatalf("kind = %q (%v)", apperr.KindOf(err), err)
	}
	var e *apperr.Error
	if !asErr(err, &e) || len(e.Fields) != 1 {
		t.Fatalf("fields = %+v", e)
	}
	// keys are sorted, so index 1 is verification_status
	if e.Fields[0].Field != KeyStatus || e.Fields[0].Code != "INVALID_VALUE" {
		t.Fatalf("field error = %+v", e.Fields[0])
	}
}

func TestTopLevelErrorsAreUpstreamUnavailable(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		io.WriteString(w, `{"errors":[{"message":"Throttled","extensions":{"code":"THROTTLED"}}]}`)
	})
	err := NewSynchronizer(c).Upsert(context.Background(), "gid://shopify/Order/1", map[string]string{KeyStatus: "pending"})
	if apperr.KindOf(err) != apperr.UpstreamUnavailable {
		t.Fatalf("kind = %q", apperr.KindOf(err))
	}
	if !strings.Contains(err.Error(), "THROTTLED") {
		t.Fatalf("err = %v", err)
	}
}

func TestReadOrder(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, call gqlCall) {
		if call.Variables["ns"] != MetafieldNamespace {
			t.Errorf("ns = %v", call.Variables["ns"])
		}
		io.WriteString(w, `{"data":{"order":{
			"id":"gid://shopify/Order/7","name":"#1007","email":"",
			"customer":{"email":"buyer@example.com","phone":"+15550100"},
			"metafields":{"edges":[
				{"node":{"key":"verification_status","value":"enrolled"}},
				{"node":{"key":"proof_reference","value":"prf_1"}}
			]}}}}`)
	})
	st, err := c.ReadOrder(context.Background(), "gid://shopify/Order/7")
	if err != nil {
		t.Fatal(err)
	}
	if st.Email != "buyer@example.com" || st.Phone != "+15550100" || st.Name != "#1007" {
		t.Fatalf("contact = %+v", st)
	}
	if st.Fields[KeyStatus] != "enrolled" || st.Fields[KeyProofReference] != "prf_1" {
		t.Fatalf("fields = %v", st.Fields)
	}
}

func TestReadOrderMissing(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, _ gqlCall) {
		io.WriteString(w, `{"data":{"order":null}}`)
	})
	st, err := c.ReadOrder(context.Background(), "gid://shopify/Order/7")
	if err != nil || st != nil {
		t.Fatalf("st=%v err=%v", st, err)
	}
}

func TestOrderByName(t *testing.T) {
	c, _ := newTestClient(t, func(w http.ResponseWriter, call gqlCall) {
		if call.Variables["q"] == "name:#1001" {
			io.WriteString(w, `{"data":{"orders":{"edges":[{"node":{"id":"gid://shopify/Order/1","name":"#1001"}}]}}}`)
			return
		}
		io.WriteString(w, `{"data":{"orders":{"edges":[]}}}`)
	})
	r := NewResolver(c)
	gid, err := r.Resolve(context.Background(), "#1001")
	if err != nil || gid != "gid://shopify/Order/1" {
		t.Fatalf("gid=%q err=%v", gid, err)
	}
}

func TestLegacyID(t *testing.T) {
	if got := LegacyID("gid://shopify/Order/123"); got != "123" {
		t.Fatalf("got %q", got)
	}
}

func asErr(err error, target **apperr.Error) bool {
	return errors.As(err, target)
}
