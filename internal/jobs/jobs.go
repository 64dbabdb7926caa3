// Package jobs carries deferred side effects (proof sync, metafield retries,
// notifications) over an SNS topic that fans into the worker's SQS queue.
package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
	"github.com/google/uuid"

	"github.com/taimoorali-code/Ink-Shopify-Dashboard/internal/notify"
)

type Kind string

const (
	SyncProof   Kind = "sync_proof"
	ApplyUpdate Kind = "apply_update"
	Notify      Kind = "notify"
)

type Job struct {
	ID         string `json:"id"`
	Kind       Kind   `json:"kind"`
	OrderGID   string `json:"order_gid,omitempty"`
	ProofID    string `json:"proof_id,omitempty"`
	Status     string `json:"status,omitempty"`
	GPSVerdict string `json:"gps_verdict,omitempty"`
	// PhoneChecked is set when the scan carried phone digits.
	PhoneChecked bool              `json:"phone_checked,omitempty"`
	Update       map[string]string `json:"update,omitempty"`
	Notice       *notify.Notice    `json:"notice,omitempty"`
	EnqueuedAt   time.Time         `json:"enqueued_at"`
}

func (j Job) Validate() error {
	switch j.Kind {
	case SyncProof:
		if j.ProofID == "" || j.Status == "" {
			return errors.New("sync_proof job needs proof_id and status")
		}
	case ApplyUpdate:
		if j.OrderGID == "" || len(j.Update) == 0 {
			return errors.New("apply_update job needs order_gid and update")
		}
	case Notify:
		if j.Notice == nil || j.Notice.OrderGID == "" {
			return errors.New("notify job without notice")
		}
	default:
		return fmt.Errorf("unknown job kind %q", j.Kind)
	}
	return nil
}

type Queue interface {
	Enqueue(ctx context.Context, j Job) error
}

func stamp(j *Job) {
	if j.ID == "" {
		j.ID = uuid.NewString()
	}
	if j.EnqueuedAt.IsZero() {
		j.EnqueuedAt = time.Now().UTC()
	}
}

type Publisher interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// SNSQueue publishes jobs to a topic whose SQS subscription uses raw delivery.
type SNSQueue struct {
	SNS      Publisher
	TopicARN string
}

func (q *SNSQueue) Enqueue(ctx context.Context, j Job) error {
	stamp(&j)
	if err := j.Validate(); err != nil {
		return err
	}
	b, err := json.Marshal(j)
	if err != nil {
		return err
	}
	_, err = q.SNS.Publish(ctx, &sns.PublishInput{
		TopicArn: aws.String(q.TopicARN),
		Message:  aws.String(string(b)),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"kind": {DataType: aws.String("String"), StringValue: aws.String(string(j.Kind))},
		},
	})
	if err != nil {
		return fmt.Errorf("publish %s job: %w", j.Kind, err)
	}
	return nil
}

// MemoryQueue hands jobs to an in-process consumer; used by the dev server.
type MemoryQueue struct {
	ch chan Job
}

func NewMemoryQueue(size int) *MemoryQueue {
	return &MemoryQueue{ch: make(chan Job, size)}
}

func (q *MemoryQueue) Enqueue(ctx context.Context, j Job) error {
	stamp(&j)
	if err := j.Validate(); err != nil {
		return err
	}
	select {
	case q.ch <- j:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *MemoryQueue) Jobs() <-chan Job { return q.ch }

func (q *MemoryQueue) Close() { close(q.ch) }

type snsEnvelope struct {
	Type    string `json:"Type"`
	Message string `json:"Message"`
}

// Decode reads an SQS body. Both raw delivery and the SNS notification
// envelope are accepted.
func Decode(body string) (Job, error) {
	var j Job
	raw := []byte(strings.TrimSpace(body))

	var env snsEnvelope
	if err := json.Unmarshal(raw, &env); err == nil && env.Type == "Notification" && env.Message != "" {
		raw = []byte(env.Message)
	}
	if err := json.Unmarshal(raw, &j); err != nil {
		return Job{}, fmt.Errorf("unmarshal job: %w", err)
	}
	if err := j.Validate(); err != nil {
		return Job{}, err
	}
	return j, nil
}
