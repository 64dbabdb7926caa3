package reconcile

import (
	"context"
	"log/slog"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/lifecycle"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/notify"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/shopify"
)

const followupClaim = "followup"

type SweepReport struct {
	Candidates int `json:"candidates"`
	Reminded   int `json:"reminded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Sweep queues (or, with no queue, sends) one reminder for every order enrolled between FollowupMinAge
// and FollowupMaxAge ago that is still unverified. The ledger claim and the
// followup_sent metafield each keep a second run from reminding again.
func (o *Orchestrator) Sweep(ctx context.Context) (*SweepReport, error) {
	lo, hi := o.followupWindow()
	entries, err := o.Ledger.ListStaleEnrolled(ctx, lo, hi)
	if err != nil {
		return nil, err
	}

	rep := &SweepReport{Candidates: len(entries)}
	for _, e := range entries {
		l := o.log().With(slog.String("order_gid", e.OrderGid))

		st, err := o.Orders.ReadOrder(ctx, e.OrderGid)
		if err != nil {
			l.Warn("sweep: read order failed", slog.Any("err", err))
			rep.Failed++
			continue
		}
		if st == nil ||
			lifecycle.Parse(st.Fields[shopify.KeyStatus]) != lifecycle.Enrolled ||
			st.Fields[shopify.KeyFollowupSent] == "true" {
			rep.Skipped++
			continue
		}

		claimed, err := o.Ledger.ClaimNotice(ctx, e.OrderGid, followupClaim)
		if err != nil {
			l.Warn("sweep: claim failed", slog.Any("err", err))
			rep.Failed++
			continue
		}
		if !claimed {
			rep.Skipped++
			continue
		}

		n := notify.Notice{
			Kind:      notify.Reminder,
			OrderGID:  e.OrderGid,
			OrderName: st.Name,
			Email:     st.Email,
			Phone:     st.Phone,
			VerifyURL: st.Fields[shopify.KeyVerifyURL],
			ProofID:   st.Fields[shopify.KeyProofReference],
		}
		if err := o.deliverNotice(ctx, n); err != nil {
			l.Error("sweep: reminder not delivered", slog.Any("err", err))
			if rerr := o.Ledger.ReleaseNotice(ctx, e.OrderGid, followupClaim); rerr != nil {
				l.Error("sweep: release claim failed", slog.Any("err", rerr))
			}
			rep.Failed++
			continue
		}

		fields := map[string]string{shopify.KeyFollowupSent: "true"}
		if _, err := o.apply(ctx, e.OrderGid, fields); err != nil {
			o.retryLater(ctx, e.OrderGid, fields, err)
		}
		if err := o.Ledger.MarkFollowupSent(ctx, e.OrderGid); err != nil {
			l.Warn("sweep: ledger followup mark failed", slog.Any("err", err))
		}
		o.Metrics.Reminder()
		rep.Reminded++
	}

	o.log().Info("followup sweep done",
		slog.Int("candidates", rep.Candidates),
		slog.Int("reminded", rep.Reminded),
		slog.Int("skipped", rep.Skipped),
		slog.Int("failed", rep.Failed))
	return rep, nil
}
