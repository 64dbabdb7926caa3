package reconcile

import (
	"context"
	"log/slog"
	"sort"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/lifecycle"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/notify"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/shopify"
)

// Outcome describes what apply did to one order.
type Outcome struct {
	OrderGID string
	Previous lifecycle.Status
	Status   lifecycle.Status
	Advanced bool
	// Stale is set when the update carried a status the lattice refused.
	Stale   bool
	Written []string
}

// apply diffs fields against the order's current mirror and writes only the
// keys that differ. A status the lattice does not allow drops the whole
// update, so stale and duplicate events change nothing. An advance updates
// the ledger and queues its notice even when the write fails; both are
// idempotent, so the queued retry repeating them is harmless.
func (o *Orchestrator) apply(ctx context.Context, gid string, fields map[string]string) (*Outcome, error) {
	st, err := o.Orders.ReadOrder(ctx, gid)
	if err != nil {
		return nil, err
	}
	if st == nil {
		return nil, apperr.Newf(apperr.OrderNotFound, "order %s not found", gid)
	}

	cur := lifecycle.Parse(st.Fields[shopify.KeyStatus])
	out := &Outcome{OrderGID: gid, Previous: cur, Status: cur}

	next := lifecycle.Parse(fields[shopify.KeyStatus])
	if next.Known() && !lifecycle.Allows(cur, next) {
		out.Stale = true
		o.log().Info("stale status ignored",
			slog.String("order_gid", gid),
			slog.String("current", string(cur)),
			slog.String("incoming", string(next)))
		return out, nil
	}

	changes := make(map[string]string)
	for k, v := range fields {
		if v == "" || st.Fields[k] == v {
			continue
		}
		changes[k] = v
	}
	if len(changes) == 0 {
		return out, nil
	}

	// Decided before the write. metafieldsSet is not atomic, and the retry
	// after a partial write no longer sees the advance.
	if next.Known() {
		out.Status = next
		out.Advanced = lifecycle.Advances(cur, next)
	}

	err = o.Orders.Upsert(ctx, gid, changes)
	o.Metrics.Sync(err, string(apperr.KindOf(err)))
	if err == nil {
		for k := range changes {
			out.Written = append(out.Written, k)
		}
		sort.Strings(out.Written)
	}

	if out.Advanced {
		o.Metrics.Transition(string(next))
		o.afterTransition(ctx, gid, st, fields, next)
	}
	return out, err
}

func (o *Orchestrator) afterTransition(ctx context.Context, gid string, st *shopify.OrderState, fields map[string]string, next lifecycle.Status) {
	l := o.log().With(slog.String("order_gid", gid), slog.String("status", string(next)))
	l.Info("status advanced")

	if o.Ledger != nil {
		var err error
		if next == lifecycle.Enrolled {
			err = o.Ledger.RecordEnrollment(ctx, gid, fields[shopify.KeyNfcUID], fields[shopify.KeyProofReference])
		} else {
			err = o.Ledger.SetStatus(ctx, gid, next, nil)
		}
		if err != nil {
			l.Error("ledger update failed", slog.Any("err", err))
		}
	}

	var kind notify.Kind
	switch next {
	case lifecycle.Enrolled:
		kind = notify.Enrolled
	case lifecycle.Verified:
		kind = notify.Verified
	case lifecycle.Flagged:
		kind = notify.Flagged
	default:
		return
	}
	verifyURL := fields[shopify.KeyVerifyURL]
	if verifyURL == "" {
		verifyURL = st.Fields[shopify.KeyVerifyURL]
	}
	proofID := fields[shopify.KeyProofReference]
	if proofID == "" {
		proofID = st.Fields[shopify.KeyProofReference]
	}
	o.enqueueNotice(ctx, notify.Notice{
		Kind:       kind,
		OrderGID:   gid,
		OrderName:  st.Name,
		Email:      st.Email,
		Phone:      st.Phone,
		VerifyURL:  verifyURL,
		ProofID:    proofID,
		GPSVerdict: fields[shopify.KeyGPSVerdict],
	})
}
