// Package reconcile ties the proof authority, order resolver and metafield
// mirror together. Every path (enrollment, customer scan, signed webhook,
// queued retry, follow-up sweep) converges on apply, which only ever moves
// an order forward in the status lattice.
package reconcile

import (
	"context"
	"log/slog"
	"time"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/jobs"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/ledger"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/lifecycle"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/logger"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/metrics"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/notify"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/proof"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/shopify"
)

type Authority interface {
	Enroll(ctx context.Context, in proof.EnrollRequest) (*proof.EnrollResponse, error)
	Verify(ctx context.Context, in proof.VerifyRequest) (*proof.VerifyResponse, error)
	RetrieveProof(ctx context.Context, proofID string) (*proof.Record, error)
}

type OrderResolver interface {
	Resolve(ctx context.Context, ref string) (string, error)
}

// OrderStore reads and writes the ink metafields on an order.
type OrderStore interface {
	ReadOrder(ctx context.Context, gid string) (*shopify.OrderState, error)
	Upsert(ctx context.Context, gid string, fields map[string]string) error
}

type Ledger interface {
	RecordEnrollment(ctx context.Context, gid, nfcUID, proofID string) error
	SetStatus(ctx context.Context, gid string, st lifecycle.Status, mutate func(*ledger.Entry)) error
	ListStaleEnrolled(ctx context.Context, minAge, maxAge time.Duration) ([]ledger.Entry, error)
	MarkFollowupSent(ctx context.Context, gid string) error
	ClaimNotice(ctx context.Context, gid, kind string) (bool, error)
	ReleaseNotice(ctx context.Context, gid, kind string) error
	ClaimWebhook(ctx context.Context, webhookID, topic string) (bool, error)
}

type Notifier interface {
	Send(ctx context.Context, n notify.Notice) error
}

type Config struct {
	InkWebhookSecret     string
	ShopifyWebhookSecret string
	AddonSKU             string
	FollowupMinAge       time.Duration
	FollowupMaxAge       time.Duration
}

type Orchestrator struct {
	Authority Authority
	Resolver  OrderResolver
	Orders    OrderStore
	Ledger    Ledger
	Queue     jobs.Queue
	Notifier  Notifier
	Metrics   *metrics.Metrics
	Log       *slog.Logger
	Cfg       Config
}

func (o *Orchestrator) log() *slog.Logger {
	if o.Log == nil {
		return logger.Discard()
	}
	return o.Log
}

func (o *Orchestrator) followupWindow() (time.Duration, time.Duration) {
	lo, hi := o.Cfg.FollowupMinAge, o.Cfg.FollowupMaxAge
	if lo <= 0 {
		lo = 24 * time.Hour
	}
	if hi <= 0 {
		hi = 72 * time.Hour
	}
	return lo, hi
}

// retryLater queues an apply_update so a failed metafield write is repaired by
// the worker instead of being dropped.
func (o *Orchestrator) retryLater(ctx context.Context, gid string, fields map[string]string, cause error) {
	l := o.log().With(slog.String("order_gid", gid))
	l.Warn("metafield sync deferred", slog.Any("err", cause))
	if o.Queue == nil {
		return
	}
	if err := o.Queue.Enqueue(ctx, jobs.Job{Kind: jobs.ApplyUpdate, OrderGID: gid, Update: fields}); err != nil {
		l.Error("enqueue apply_update failed", slog.Any("err", err))
	}
}

// deliverNotice queues n for the worker. Without a queue it is sent inline
// through the same claim-then-send path the worker uses.
func (o *Orchestrator) deliverNotice(ctx context.Context, n notify.Notice) error {
	if o.Queue == nil {
		if o.Notifier == nil {
			return nil
		}
		return (&Worker{O: o}).notify(ctx, n)
	}
	return o.Queue.Enqueue(ctx, jobs.Job{Kind: jobs.Notify, OrderGID: n.OrderGID, Notice: &n})
}

func (o *Orchestrator) enqueueNotice(ctx context.Context, n notify.Notice) {
	if err := o.deliverNotice(ctx, n); err != nil {
		o.log().Error("enqueue notice failed",
			slog.String("order_gid", n.OrderGID),
			slog.String("kind", string(n.Kind)),
			slog.Any("err", err))
		o.Metrics.Notice(string(n.Kind), "enqueue_failed")
	}
}
