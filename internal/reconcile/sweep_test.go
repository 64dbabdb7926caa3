package reconcile

import (
	"context"
	"testing"
	"time"

	"github.com/aws/aws-lambda-go/events"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/jobs"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/notify"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/security"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/shopify"
)

// enrollAt enrolls orderGID as if it happened age ago.
func (h *harness) enrollAt(t *testing.T, age time.Duration) {
	t.Helper()
	h.ledger.now = h.now.Add(-age)
	h.enroll(t, sampleSerial)
	h.ledger.now = h.now
	h.queue.drain(context.Background(), h.w)
}

func TestFollowupSweepRemindsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enrollAt(t, 30*time.Hour)

	rep, err := h.o.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Candidates != 1 || rep.Reminded != 1 {
		t.Fatalf("first sweep = %+v", rep)
	}
	if got := h.orders.fields(orderGID)[shopify.KeyFollowupSent]; got != "true" {
		t.Fatalf("followup_sent = %q", got)
	}
	h.queue.drain(ctx, h.w)
	if h.notifier.count(notify.Reminder) != 1 {
		t.Fatalf("reminders = %d", h.notifier.count(notify.Reminder))
	}

	rep, err = h.o.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Reminded != 0 || rep.Skipped != 1 {
		t.Fatalf("second sweep = %+v", rep)
	}
	h.queue.drain(ctx, h.w)
	if h.notifier.count(notify.Reminder) != 1 {
		t.Fatalf("reminders after second sweep = %d", h.notifier.count(notify.Reminder))
	}
	if h.ledger.entries[orderGID].FollowupSentAt == "" {
		t.Fatal("ledger not marked")
	}
}

func TestFollowupSweepWindow(t *testing.T) {
	for _, tc := range []struct {
		age  time.Duration
		want int
	}{
		{2 * time.Hour, 0},
		{30 * time.Hour, 1},
		{80 * time.Hour, 0},
	} {
		h := newHarness(t)
		h.enrollAt(t, tc.age)
		rep, err := h.o.Sweep(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if rep.Reminded != tc.want {
			t.Errorf("age %v: reminded = %d, want %d", tc.age, rep.Reminded, tc.want)
		}
	}
}

func TestFollowupSweepSkipsVerified(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enrollAt(t, 30*time.Hour)

	// The ledger still says enrolled but the mirror already moved on.
	h.orders.orders[orderGID].Fields[shopify.KeyStatus] = "verified"

	rep, err := h.o.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Reminded != 0 || rep.Skipped != 1 {
		t.Fatalf("rep = %+v", rep)
	}
}

func TestFollowupSweepEnqueueFailureReleasesClaim(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enrollAt(t, 30*time.Hour)

	h.queue.err = errBoom
	rep, err := h.o.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Failed != 1 || rep.Reminded != 0 {
		t.Fatalf("rep = %+v", rep)
	}
	if h.orders.fields(orderGID)[shopify.KeyFollowupSent] != "" {
		t.Fatal("followup_sent written without a queued reminder")
	}

	h.queue.err = nil
	rep, _ = h.o.Sweep(ctx)
	if rep.Reminded != 1 {
		t.Fatalf("retry rep = %+v", rep)
	}
}

func TestFollowupSweepWithoutQueueSendsInline(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	h.enrollAt(t, 30*time.Hour)
	h.o.Queue = nil

	h.notifier.err = errBoom
	rep, err := h.o.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Failed != 1 || rep.Reminded != 0 {
		t.Fatalf("rep = %+v", rep)
	}
	if h.ledger.claims[orderGID+"|"+followupClaim] {
		t.Fatal("followup claim kept after a failed send")
	}

	h.notifier.err = nil
	rep, err = h.o.Sweep(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if rep.Reminded != 1 || h.notifier.count(notify.Reminder) != 1 {
		t.Fatalf("rep = %+v reminders = %d", rep, h.notifier.count(notify.Reminder))
	}
	if h.orders.fields(orderGID)[shopify.KeyFollowupSent] != "true" {
		t.Fatal("followup_sent not written")
	}
}

func TestNotifyJobDedupeAndRetry(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	job := jobs.Job{ID: "j1", Kind: jobs.Notify, OrderGID: orderGID, Notice: &notify.Notice{Kind: notify.Verified, OrderGID: orderGID}}

	h.notifier.err = errBoom
	if err := h.w.Process(ctx, job); err == nil {
		t.Fatal("send failure must be retried")
	}

	h.notifier.err = nil
	if err := h.w.Process(ctx, job); err != nil {
		t.Fatal(err)
	}
	if err := h.w.Process(ctx, job); err != nil {
		t.Fatal(err)
	}
	if h.notifier.count(notify.Verified) != 1 {
		t.Fatalf("sent = %d", h.notifier.count(notify.Verified))
	}
	if h.notifier.sent[0].Email != "buyer@example.com" {
		t.Fatalf("contact not filled from order: %+v", h.notifier.sent[0])
	}
}

func TestNotifyNoChannelIsNotRetried(t *testing.T) {
	h := newHarness(t)
	h.notifier.err = notify.ErrNoChannel
	job := jobs.Job{Kind: jobs.Notify, Notice: &notify.Notice{Kind: notify.Flagged, OrderGID: orderGID}}
	if err := h.w.Process(context.Background(), job); err != nil {
		t.Fatalf("err = %v", err)
	}
}

func TestSyncProofTerminalErrorsAreDropped(t *testing.T) {
	h := newHarness(t)
	if err := h.w.Process(context.Background(), jobs.Job{Kind: jobs.SyncProof, ProofID: "prf_missing", Status: "verified"}); err != nil {
		t.Fatalf("ProofNotFound should be dropped, got %v", err)
	}
}

func TestHandleSQSReportsOnlyFailures(t *testing.T) {
	h := newHarness(t)
	h.o.Orders.(*fakeOrders).upsertErr = errBoom

	ev := events.SQSEvent{Records: []events.SQSMessage{
		{MessageId: "ok", Body: `{"kind":"notify","notice":{"kind":"verified","order_gid":"` + orderGID + `"}}`},
		{MessageId: "poison", Body: `not json`},
		{MessageId: "retry", Body: `{"kind":"apply_update","order_gid":"` + orderGID + `","update":{"verification_status":"pending"}}`},
	}}
	resp, err := h.w.HandleSQS(context.Background(), ev)
	if err != nil {
		t.Fatal(err)
	}
	if len(resp.BatchItemFailures) != 1 || resp.BatchItemFailures[0].ItemIdentifier != "retry" {
		t.Fatalf("failures = %+v", resp.BatchItemFailures)
	}
}

func TestMarkPending(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	body := []byte(`{"id":5550001,"admin_graphql_api_id":"` + orderGID + `","name":"#1001","line_items":[{"sku":"ink-verified-delivery","title":"Verified delivery"}]}`)
	sig := security.Sign(body, shopSecret, security.Base64)

	res, err := h.o.MarkPending(ctx, body, sig, "wh-1")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Advanced || h.orders.fields(orderGID)[shopify.KeyStatus] != "pending" {
		t.Fatalf("res = %+v fields = %v", res, h.orders.fields(orderGID))
	}

	dup, err := h.o.MarkPending(ctx, body, sig, "wh-1")
	if err != nil || !dup.Duplicate {
		t.Fatalf("dup = %+v err = %v", dup, err)
	}

	if _, err := h.o.MarkPending(ctx, body, security.Sign(body, shopSecret, security.Hex), "wh-2"); err == nil {
		t.Fatal("hex signature must not pass the Shopify verifier")
	}

	plain := []byte(`{"id":5550001,"line_items":[{"sku":"TSHIRT"}]}`)
	res, err = h.o.MarkPending(ctx, plain, security.Sign(plain, shopSecret, security.Base64), "wh-3")
	if err != nil || !res.Skipped {
		t.Fatalf("no add-on: res = %+v err = %v", res, err)
	}
}

func TestMarkPendingAfterEnrollIsStale(t *testing.T) {
	h := newHarness(t)
	h.enroll(t, sampleSerial)
	body := []byte(`{"id":5550001,"line_items":[{"sku":"INK-VERIFIED-DELIVERY"}]}`)
	res, err := h.o.MarkPending(context.Background(), body, security.Sign(body, shopSecret, security.Base64), "wh-9")
	if err != nil {
		t.Fatal(err)
	}
	if !res.Skipped || h.orders.fields(orderGID)[shopify.KeyStatus] != "enrolled" {
		t.Fatalf("res = %+v", res)
	}
}
