// Package notify delivers customer and merchant notices: e-mail through SES,
// SMS and merchant alerts through SNS.
package notify

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
	snstypes "github.com/aws/aws-sdk-go-v2/service/sns/types"
)

type Kind string

const (
	Enrolled Kind = "enrolled"
	Verified Kind = "verified"
	Flagged  Kind = "flagged"
	Reminder Kind = "reminder"
)

// Notice is what gets queued; contact details are filled from the order.
type Notice struct {
	Kind       Kind   `json:"kind"`
	OrderGID   string `json:"order_gid"`
	OrderName  string `json:"order_name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	VerifyURL  string `json:"verify_url,omitempty"`
	ProofID    string `json:"proof_id,omitempty"`
	GPSVerdict string `json:"gps_verdict,omitempty"`
}

// ErrNoChannel means the notice had nowhere to go (no address, no topic).
var ErrNoChannel = errors.New("notify: no delivery channel")

type EmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SNSAPI interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

type Dispatcher struct {
	Email          EmailAPI
	SNS            SNSAPI
	From           string
	AlertsTopicARN string
	Shop           string
}

// Send routes customer notices to e-mail and SMS, and flagged notices to the
// merchant alerts topic. It succeeds when at least one channel accepted it.
func (d *Dispatcher) Send(ctx context.Context, n Notice) error {
	subject, body := BuildMessage(d.Shop, n)

	if n.Kind == Flagged {
		if d.SNS == nil || d.AlertsTopicARN == "" {
			return ErrNoChannel
		}
		_, err := d.SNS.Publish(ctx, &sns.PublishInput{
			TopicArn: aws.String(d.AlertsTopicARN),
			Subject:  aws.String(subject),
			Message:  aws.String(body),
		})
		if err != nil {
			return fmt.Errorf("publish merchant alert: %w", err)
		}
		return nil
	}

	var errs []error
	sent := 0
	if n.Email != "" && d.Email != nil && d.From != "" {
		if err := d.sendEmail(ctx, n.Email, subject, body); err != nil {
			errs = append(errs, err)
		} else {
			sent++
		}
	}
	if n.Phone != "" && d.SNS != nil {
		if err := d.sendSMS(ctx, n.Phone, smsText(n)); err != nil {
			errs = append(errs, err)
		} else {
			sent++
		}
	}
	if sent > 0 {
		return nil
	}
	if len(errs) == 0 {
		return ErrNoChannel
	}
	return errors.Join(errs...)
}

func (d *Dispatcher) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := d.Email.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(d.From),
		Destination:      &sestypes.Destination{ToAddresses: []string{to}},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(subject)},
				Body: &sestypes.Body{
					Text: &sestypes.Content{Data: aws.String(body)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("ses send: %w", err)
	}
	return nil
}

func (d *Dispatcher) sendSMS(ctx context.Context, phone, text string) error {
	_, err := d.SNS.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(phone),
		Message:     aws.String(text),
		MessageAttributes: map[string]snstypes.MessageAttributeValue{
			"AWS.SNS.SMS.SMSType": {DataType: aws.String("String"), StringValue: aws.String("Transactional")},
		},
	})
	if err != nil {
		return fmt.Errorf("sns sms: %w", err)
	}
	return nil
}

func orderLabel(n Notice) string {
	if n.OrderName != "" {
		return n.OrderName
	}
	return n.OrderGID
}

// BuildMessage renders the plain-text subject and body for a notice.
func BuildMessage(shop string, n Notice) (subject, body string) {
	order := orderLabel(n)
	var lines []string
	switch n.Kind {
	case Enrolled:
		subject = fmt.Sprintf("Your order %s is protected by verified delivery", order)
		lines = []string{
			fmt.Sprintf("Your order %s has been sealed with an NFC verification tag.", order),
			"When it arrives, tap the tag with your phone to confirm delivery.",
		}
	case Verified:
		subject = fmt.Sprintf("Delivery confirmed for order %s", order)
		lines = []string{fmt.Sprintf("Thanks! Delivery of order %s has been verified.", order)}
	case Reminder:
		subject = fmt.Sprintf("Did order %s arrive?", order)
		lines = []string{
			fmt.Sprintf("We have not seen a delivery confirmation for order %s yet.", order),
			"Tap the NFC tag on the package with your phone to confirm receipt.",
		}
	case Flagged:
		subject = fmt.Sprintf("Ink: delivery flagged for %s (%s)", order, shop)
		lines = []string{
			"A delivery verification needs review.",
			"",
			fmt.Sprintf("Shop: %s", shop),
			fmt.Sprintf("Order: %s", order),
		}
		if n.GPSVerdict != "" {
			lines = append(lines, fmt.Sprintf("GPS verdict: %s", n.GPSVerdict))
		}
		if n.ProofID != "" {
			lines = append(lines, fmt.Sprintf("Proof: %s", n.ProofID))
		}
		lines = append(lines, "", fmt.Sprintf("ReceivedAt: %s", time.Now().UTC().Format(time.RFC3339)))
	default:
		subject = fmt.Sprintf("Update on order %s", order)
	}
	if n.VerifyURL != "" && n.Kind != Flagged {
		lines = append(lines, "", "Proof of delivery: "+n.VerifyURL)
	}
	return subject, strings.Join(lines, "\n")
}

func smsText(n Notice) string {
	order := orderLabel(n)
	switch n.Kind {
	case Enrolled:
		return fmt.Sprintf("Order %s ships with an NFC tag. Tap it on arrival to confirm delivery.", order)
	case Verified:
		return fmt.Sprintf("Delivery of order %s is verified. Thank you!", order)
	case Reminder:
		return fmt.Sprintf("Did order %s arrive? Tap the NFC tag on the package to confirm.", order)
	}
	return fmt.Sprintf("Update on order %s.", order)
}
