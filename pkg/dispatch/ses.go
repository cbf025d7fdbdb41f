package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	sestypes "github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"github.com/iamabhinav-dev/Employee-Wellbeing-ChatBot-gc25/pkg/apperr"
)

// SESAPI is the subset of the SES v2 client used by SESSender.
type SESAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type SESConfig struct {
	FromAddress   string
	FromName      string
	ConfigSetName string
}

// SESSender sends through AWS SES v2 with pre-rendered content.
type SESSender struct {
	api    SESAPI
	cfg    SESConfig
	logger *slog.Logger
}

func NewSESSender(awsCfg aws.Config, cfg SESConfig, logger *slog.Logger) *SESSender {
	return NewSESSenderWithAPI(sesv2.NewFromConfig(awsCfg), cfg, logger)
}

func NewSESSenderWithAPI(api SESAPI, cfg SESConfig, logger *slog.Logger) *SESSender {
	return &SESSender{api: api, cfg: cfg, logger: logger}
}

func (s *SESSender) Send(ctx context.Context, msg Message) error {
	from := s.cfg.FromAddress
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromAddress)
	}

	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &sestypes.Destination{
			ToAddresses: []string{msg.To},
		},
		Content: &sestypes.EmailContent{
			Simple: &sestypes.Message{
				Subject: &sestypes.Content{Data: aws.String(msg.Subject), Charset: aws.String("UTF-8")},
				Body: &sestypes.Body{
					Html: &sestypes.Content{Data: aws.String(msg.BodyHTML), Charset: aws.String("UTF-8")},
					Text: &sestypes.Content{Data: aws.String(msg.BodyText), Charset: aws.String("UTF-8")},
				},
			},
		},
	}
	if s.cfg.ConfigSetName != "" {
		input.ConfigurationSetName = aws.String(s.cfg.ConfigSetName)
	}
	if msg.ReferenceID != "" {
		input.EmailTags = []sestypes.MessageTag{
			{Name: aws.String("JobID"), Value: aws.String(msg.ReferenceID)},
		}
	}

	out, err := s.api.SendEmail(ctx, input)
	if err != nil {
		return mapSESError(err)
	}
	if out.MessageId != nil {
		s.logger.Debug("ses accepted message", "message_id", *out.MessageId, "reference_id", msg.ReferenceID)
	}
	return nil
}

// mapSESError classifies SES failures. Only a rejected message is permanent;
// throttling, paused sending and transport errors are retried.
func mapSESError(err error) error {
	var rejected *sestypes.MessageRejected
	if errors.As(err, &rejected) {
		return apperr.PermanentRecipient("SES rejected message", err)
	}
	var throttled *sestypes.TooManyRequestsException
	if errors.As(err, &throttled) {
		return apperr.Transient("SES rate limit exceeded", err)
	}
	var paused *sestypes.SendingPausedException
	if errors.As(err, &paused) {
		return apperr.Transient("SES account sending paused", err)
	}
	return apperr.Transient("SES error", err)
}
