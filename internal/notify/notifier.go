// Package notify delivers intake completion notifications over SES email
// and, for high-priority recipients with a phone on file, SNS SMS. Delivery
// is best-effort: failures are logged, never surfaced to the request.
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"intake-service/internal/common/logger"
	"intake-service/internal/models"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	"github.com/aws/aws-sdk-go-v2/service/sns"
)

// Interfaces over the AWS clients for mocking.
type SESService interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

type SNSService interface {
	Publish(ctx context.Context, params *sns.PublishInput, optFns ...func(*sns.Options)) (*sns.PublishOutput, error)
}

// Config controls which channels are active.
type Config struct {
	EmailEnabled bool
	SMSEnabled   bool
	FromEmail    string
}

type Notifier struct {
	config    Config
	db        *sql.DB
	sesClient SESService
	snsClient SNSService
	logger    logger.Logger
}

func NewNotifier(cfg Config, db *sql.DB, sesClient SESService, snsClient SNSService, log logger.Logger) *Notifier {
	return &Notifier{
		config:    cfg,
		db:        db,
		sesClient: sesClient,
		snsClient: snsClient,
		logger:    log.WithFields(map[string]interface{}{"component": "intake-notifier"}),
	}
}

const (
	completedSubject = "Intake Complete"
	completedBody    = "Your intake for program {{programId}} is complete. Funding pathway: {{fundingPathway}}. You may now proceed to enrollment."
)

// NotifyCompleted informs the applicant that their intake reached the
// completed status.
func (n *Notifier) NotifyCompleted(ctx context.Context, rec *models.IntakeRecord) {
	email, phone, err := n.recipientContact(ctx, rec.UserID)
	if err != nil {
		n.logger.Warn("recipient not found, skipping notification", map[string]interface{}{
			"userId":   rec.UserID,
			"intakeId": rec.ID,
		})
		return
	}

	data := map[string]interface{}{
		"programId":      rec.ProgramID,
		"fundingPathway": string(rec.FundingPathway),
	}
	body := renderTemplate(completedBody, data)

	if n.config.EmailEnabled && email != "" {
		if err := n.sendEmail(ctx, email, completedSubject, body); err != nil {
			n.logger.Error("completion email failed", map[string]interface{}{
				"error":    err,
				"intakeId": rec.ID,
			})
		}
	}

	if n.config.SMSEnabled && phone != "" {
		if err := n.sendSMS(ctx, phone, body); err != nil {
			n.logger.Error("completion SMS failed", map[string]interface{}{
				"error":    err,
				"intakeId": rec.ID,
			})
		}
	}
}

func (n *Notifier) recipientContact(ctx context.Context, userID string) (string, string, error) {
	var email, phone string
	err := n.db.QueryRowContext(ctx,
		`SELECT email, phone FROM users WHERE id = $1`, userID).Scan(&email, &phone)
	return email, phone, err
}

func (n *Notifier) sendEmail(ctx context.Context, to, subject, body string) error {
	_, err := n.sesClient.SendEmail(ctx, &ses.SendEmailInput{
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{Data: aws.String(subject)},
			Body: &types.Body{
				Text: &types.Content{Data: aws.String(body)},
				Html: &types.Content{Data: aws.String(body)},
			},
		},
		Source: aws.String(n.config.FromEmail),
	})
	return err
}

func (n *Notifier) sendSMS(ctx context.Context, to, message string) error {
	_, err := n.snsClient.Publish(ctx, &sns.PublishInput{
		PhoneNumber: aws.String(to),
		Message:     aws.String(message),
	})
	return err
}

// renderTemplate fills {{placeholders}}; unknown placeholders are removed.
func renderTemplate(tmpl string, data map[string]interface{}) string {
	result := tmpl

	for k, v := range data {
		placeholder := "{{" + k + "}}"
		value := ""
		if s, ok := v.(string); ok {
			value = s
		} else if v != nil {
			value = fmt.Sprintf("%v", v)
		}
		result = strings.ReplaceAll(result, placeholder, value)
	}

	for {
		start := strings.Index(result, "{{")
		if start == -1 {
			break
		}
		end := strings.Index(result[start:], "}}")
		if end == -1 {
			break
		}
		end += start + 2
		result = result[:start] + result[end:]
	}

	return result
}
