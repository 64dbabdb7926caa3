package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-lambda-go/events"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/jobs"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/lifecycle"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/notify"
)

// Worker drains the job queue.
type Worker struct {
	O *Orchestrator
}

// terminal errors are logged and dropped; retrying cannot fix them.
func terminal(err error) bool {
	switch apperr.KindOf(err) {
	case apperr.OrderNotFound, apperr.ProofNotFound, apperr.MalformedPayload, apperr.TagNotEnrolled:
		return true
	}
	return false
}

// Process runs one job. A returned error means the job should be retried.
func (w *Worker) Process(ctx context.Context, j jobs.Job) error {
	var err error
	switch j.Kind {
	case jobs.SyncProof:
		err = w.syncProof(ctx, j)
	case jobs.ApplyUpdate:
		_, err = w.O.apply(ctx, j.OrderGID, j.Update)
	case jobs.Notify:
		if j.Notice == nil {
			err = apperr.New(apperr.MalformedPayload, "notify job without notice")
			break
		}
		err = w.notify(ctx, *j.Notice)
	default:
		err = apperr.Newf(apperr.MalformedPayload, "unknown job kind %q", j.Kind)
	}
	w.O.Metrics.Job(string(j.Kind), err)

	if err != nil && terminal(err) {
		w.O.log().Warn("dropping job",
			slog.String("job_id", j.ID),
			slog.String("kind", string(j.Kind)),
			slog.Any("err", err))
		return nil
	}
	return err
}

// syncProof mirrors a customer scan. The status and verdict are the ones the
// authority returned for the scan; the retrieved record only supplies the
// delivery details and the order.
func (w *Worker) syncProof(ctx context.Context, j jobs.Job) error {
	if j.Status == "" {
		return apperr.New(apperr.MalformedPayload, "sync_proof job without status")
	}
	rec, err := w.O.Authority.RetrieveProof(ctx, j.ProofID)
	w.O.Metrics.Authority("retrieve", err, string(apperr.KindOf(err)))
	if err != nil {
		return err
	}
	if rec.Delivery == nil {
		return nil
	}

	verdict := j.GPSVerdict
	if verdict == "" {
		verdict = rec.Delivery.GPSVerdict
	}
	st := effectiveStatus(j.Status, verdict)
	l := w.O.log().With(slog.String("proof_id", j.ProofID), slog.String("status", j.Status))
	switch {
	case st == lifecycle.Unknown:
		return apperr.Newf(apperr.MalformedPayload, "unknown verification status %q", j.Status)
	case st == lifecycle.Verified && j.PhoneChecked && !rec.Delivery.PhoneVerified:
		l.Warn("phone not verified; mirror left unchanged")
		return nil
	}

	gid, err := w.O.Resolver.Resolve(ctx, rec.OrderID)
	if err != nil {
		return err
	}
	gps := rec.Delivery.DeliveryGPS
	proofRef := rec.ProofID
	if proofRef == "" {
		proofRef = j.ProofID
	}
	fields := deliveryFields(st, proofRef, &gps, verdict, rec.Delivery.Timestamp, rec.VerifyURL)
	_, err = w.O.apply(ctx, gid, fields)
	return err
}

// notify sends a notice at most once per order and kind. A failed send
// releases the claim so the retry can try again.
func (w *Worker) notify(ctx context.Context, n notify.Notice) error {
	l := w.O.log().With(slog.String("order_gid", n.OrderGID), slog.String("kind", string(n.Kind)))

	claimed, err := w.O.Ledger.ClaimNotice(ctx, n.OrderGID, string(n.Kind))
	if err != nil {
		return err
	}
	if !claimed {
		l.Info("notice already sent")
		w.O.Metrics.Notice(string(n.Kind), "duplicate")
		return nil
	}

	if n.Kind != notify.Flagged && n.Email == "" && n.Phone == "" {
		if st, err := w.O.Orders.ReadOrder(ctx, n.OrderGID); err == nil && st != nil {
			n.Email, n.Phone = st.Email, st.Phone
			if n.OrderName == "" {
				n.OrderName = st.Name
			}
		}
	}

	err = w.O.Notifier.Send(ctx, n)
	switch {
	case err == nil:
		w.O.Metrics.Notice(string(n.Kind), "sent")
		l.Info("notice sent")
		return nil
	case errors.Is(err, notify.ErrNoChannel):
		w.O.Metrics.Notice(string(n.Kind), "no_channel")
		l.Warn("notice has no channel")
		return nil
	}

	w.O.Metrics.Notice(string(n.Kind), "failed")
	if rerr := w.O.Ledger.ReleaseNotice(ctx, n.OrderGID, string(n.Kind)); rerr != nil {
		l.Error("release notice claim failed", slog.Any("err", rerr))
	}
	return fmt.Errorf("send %s notice: %w", n.Kind, err)
}

// HandleSQS processes a batch and reports failed messages individually so
// only those are redelivered.
func (w *Worker) HandleSQS(ctx context.Context, ev events.SQSEvent) (events.SQSEventResponse, error) {
	failures := make([]events.SQSBatchItemFailure, 0)
	for _, rec := range ev.Records {
		l := w.O.log().With(slog.String("msg_id", rec.MessageId))
		j, err := jobs.Decode(rec.Body)
		if err != nil {
			l.Error("undecodable job dropped", slog.Any("err", err))
			continue
		}
		if err := w.Process(ctx, j); err != nil {
			l.Error("job failed", slog.String("kind", string(j.Kind)), slog.Any("err", err))
			failures = append(failures, events.SQSBatchItemFailure{ItemIdentifier: rec.MessageId})
		}
	}
	return events.SQSEventResponse{BatchItemFailures: failures}, nil
}

// Run consumes an in-process queue until it is closed or ctx ends.
func (w *Worker) Run(ctx context.Context, q <-chan jobs.Job) {
	for {
		select {
		case <-ctx.Done():
			return
		case j, ok := <-q:
			if !ok {
				return
			}
			if err := w.Process(ctx, j); err != nil {
				w.O.log().Error("job failed", slog.String("job_id", j.ID), slog.Any("err", err))
			}
		}
	}
}
