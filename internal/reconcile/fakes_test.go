package reconcile

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/apperr"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/jobs"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/ledger"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/lifecycle"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/notify"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/proof"
	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/shopify"
)

// fakeAuthority keeps enrollments by nfc_uid, like the real service.
type fakeAuthority struct {
	mu        sync.Mutex
	enrolled  map[string]proof.Record
	byProof   map[string]*proof.Record
	verdict   string
	status    string
	// phoneMismatch makes the recorded delivery fail its phone check.
	phoneMismatch bool
	verifyErr     error
	enrolls       int
	nextID        int
}

func newFakeAuthority() *fakeAuthority {
	return &fakeAuthority{enrolled: map[string]proof.Record{}, byProof: map[string]*proof.Record{}, verdict: "within_range", status: "verified"}
}

func (a *fakeAuthority) Enroll(_ context.Context, in proof.EnrollRequest) (*proof.EnrollResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.enrolls++
	a.nextID++
	id := fmt.Sprintf("prf_%d", a.nextID)
	rec := proof.Record{ProofID: id, OrderID: in.OrderID, VerifyURL: "https://verify.example/" + id}
	a.enrolled[in.NfcUID] = rec
	a.byProof[id] = &rec
	return &proof.EnrollResponse{ProofID: id, EnrollmentStatus: "enrolled", KeyID: "k1"}, nil
}

func (a *fakeAuthority) Verify(_ context.Context, in proof.VerifyRequest) (*proof.VerifyResponse, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.verifyErr != nil {
		return nil, a.verifyErr
	}
	rec, ok := a.enrolled[in.NfcUID]
	if !ok {
		return nil, apperr.New(apperr.TagNotEnrolled, "not enrolled")
	}
	p := a.byProof[rec.ProofID]
	p.Delivery = &proof.Delivery{
		Timestamp:   "2026-03-11T09:00:00Z",
		DeliveryGPS:   in.DeliveryGPS,
		GPSVerdict:    a.verdict,
		PhoneVerified: in.PhoneLast4 != "" && !a.phoneMismatch,
	}
	return &proof.VerifyResponse{
		ProofID:            rec.ProofID,
		VerificationStatus: a.status,
		GPSVerdict:         a.verdict,
		VerifyURL:          rec.VerifyURL,
		Raw:                []byte(`{"proof_id":"` + rec.ProofID + `"}`),
	}, nil
}

func (a *fakeAuthority) RetrieveProof(_ context.Context, id string) (*proof.Record, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	p, ok := a.byProof[id]
	if !ok {
		return nil, apperr.New(apperr.ProofNotFound, id)
	}
	cp := *p
	return &cp, nil
}

type fakeResolver map[string]string

func (r fakeResolver) Resolve(_ context.Context, ref string) (string, error) {
	if gid, ok := r[ref]; ok {
		return gid, nil
	}
	return "", apperr.Newf(apperr.OrderNotFound, "no order %q", ref)
}

type fakeOrders struct {
	mu        sync.Mutex
	orders    map[string]*shopify.OrderState
	upserts   []map[string]string
	upsertErr error
	// rejected keys fail like metafieldsSet userErrors while the rest land.
	rejected map[string]bool
	readErr  error
}

func newFakeOrders(gids ...string) *fakeOrders {
	f := &fakeOrders{orders: map[string]*shopify.OrderState{}}
	for _, g := range gids {
		f.orders[g] = &shopify.OrderState{GID: g, Name: "#1001", Email: "buyer@example.com", Fields: map[string]string{}}
	}
	return f
}

func (f *fakeOrders) ReadOrder(_ context.Context, gid string) (*shopify.OrderState, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.readErr != nil {
		return nil, f.readErr
	}
	o, ok := f.orders[gid]
	if !ok {
		return nil, nil
	}
	cp := *o
	cp.Fields = map[string]string{}
	for k, v := range o.Fields {
		cp.Fields[k] = v
	}
	return &cp, nil
}

func (f *fakeOrders) Upsert(_ context.Context, gid string, fields map[string]string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.upsertErr != nil {
		return f.upsertErr
	}
	cp := map[string]string{}
	var bad []string
	for k, v := range fields {
		if f.rejected[k] {
			bad = append(bad, k)
			continue
		}
		f.orders[gid].Fields[k] = v
		cp[k] = v
	}
	f.upserts = append(f.upserts, cp)
	if len(bad) > 0 {
		sort.Strings(bad)
		return apperr.Newf(apperr.PartialSyncFailure, "userErrors on %v", bad)
	}
	return nil
}

func (f *fakeOrders) fields(gid string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := map[string]string{}
	for k, v := range f.orders[gid].Fields {
		out[k] = v
	}
	return out
}

type fakeLedger struct {
	mu       sync.Mutex
	entries  map[string]*ledger.Entry
	claims   map[string]bool
	webhooks map[string]bool
	now      time.Time
}

func newFakeLedger(now time.Time) *fakeLedger {
	return &fakeLedger{entries: map[string]*ledger.Entry{}, claims: map[string]bool{}, webhooks: map[string]bool{}, now: now}
}

func (l *fakeLedger) RecordEnrollment(ctx context.Context, gid, uid, proofID string) error {
	return l.SetStatus(ctx, gid, lifecycle.Enrolled, func(e *ledger.Entry) {
		e.NfcUid, e.ProofId = uid, proofID
	})
}

func (l *fakeLedger) SetStatus(_ context.Context, gid string, st lifecycle.Status, mutate func(*ledger.Entry)) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e := l.entries[gid]
	if e == nil {
		e = &ledger.Entry{OrderGid: gid}
		l.entries[gid] = e
	}
	e.Status = string(st)
	if st == lifecycle.Enrolled && e.EnrolledAt == "" {
		e.EnrolledAt = l.now.UTC().Format(time.RFC3339)
	}
	if mutate != nil {
		mutate(e)
	}
	return nil
}

func (l *fakeLedger) ListStaleEnrolled(_ context.Context, minAge, maxAge time.Duration) ([]ledger.Entry, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	var out []ledger.Entry
	for _, e := range l.entries {
		at, _ := time.Parse(time.RFC3339, e.EnrolledAt)
		age := l.now.Sub(at)
		if e.Status == string(lifecycle.Enrolled) && age >= minAge && age <= maxAge {
			out = append(out, *e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OrderGid < out[j].OrderGid })
	return out, nil
}

func (l *fakeLedger) MarkFollowupSent(_ context.Context, gid string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if e := l.entries[gid]; e != nil {
		e.FollowupSentAt = l.now.Format(time.RFC3339)
	}
	return nil
}

func (l *fakeLedger) ClaimNotice(_ context.Context, gid, kind string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	k := gid + "|" + kind
	if l.claims[k] {
		return false, nil
	}
	l.claims[k] = true
	return true, nil
}

func (l *fakeLedger) ReleaseNotice(_ context.Context, gid, kind string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.claims, gid+"|"+kind)
	return nil
}

func (l *fakeLedger) ClaimWebhook(_ context.Context, id, _ string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if id == "" {
		return false, nil
	}
	if l.webhooks[id] {
		return true, nil
	}
	l.webhooks[id] = true
	return false, nil
}

type recordingQueue struct {
	mu   sync.Mutex
	jobs []jobs.Job
	err  error
}

func (q *recordingQueue) Enqueue(_ context.Context, j jobs.Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.err != nil {
		return q.err
	}
	if err := j.Validate(); err != nil {
		return err
	}
	q.jobs = append(q.jobs, j)
	return nil
}

// drain hands every queued job to the worker, including jobs those jobs enqueue.
func (q *recordingQueue) drain(ctx context.Context, w *Worker) []error {
	var errs []error
	for {
		q.mu.Lock()
		if len(q.jobs) == 0 {
			q.mu.Unlock()
			return errs
		}
		j := q.jobs[0]
		q.jobs = q.jobs[1:]
		q.mu.Unlock()
		if err := w.Process(ctx, j); err != nil {
			errs = append(errs, err)
		}
	}
}

func (q *recordingQueue) kinds() []jobs.Kind {
	q.mu.Lock()
	defer q.mu.Unlock()
	var out []jobs.Kind
	for _, j := range q.jobs {
		out = append(out, j.Kind)
	}
	return out
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []notify.Notice
	err  error
}

func (n *fakeNotifier) Send(_ context.Context, notice notify.Notice) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, notice)
	return nil
}

func (n *fakeNotifier) count(kind notify.Kind) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, s := range n.sent {
		if s.Kind == kind {
			c++
		}
	}
	return c
}

var errBoom = errors.New("boom")
