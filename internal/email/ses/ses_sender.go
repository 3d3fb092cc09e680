package ses

import (
	"context"
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"

	"fondos/internal/domain"
	"fondos/internal/port"
)

// API is the subset of the SES v2 client the sender uses.
type API interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

type sesSender struct {
	client      API
	fromAddress string
	fromName    string
}

// NewSESSender creates a new SES-backed EmailSender.
func NewSESSender(ctx context.Context, region, fromAddress, fromName string) (port.EmailSender, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("loading AWS config for SES: %w", err)
	}
	return NewSESSenderWithClient(sesv2.NewFromConfig(cfg), fromAddress, fromName), nil
}

// NewSESSenderWithClient creates an EmailSender over an existing client.
func NewSESSenderWithClient(client API, fromAddress, fromName string) port.EmailSender {
	return &sesSender{client: client, fromAddress: fromAddress, fromName: fromName}
}

func (s *sesSender) SendRunSummary(ctx context.Context, to []string, summary *domain.ImportSummary) error {
	if len(to) == 0 {
		return nil
	}

	status := "OK"
	if !summary.Balanced() || !summary.MatchesExpected() || summary.FailedPersist > 0 {
		status = "ATTENTION"
	}
	subject := fmt.Sprintf("[%s] %s import: %d rows read, %d persisted", status, summary.RecordType, summary.RowsRead, summary.Persisted())
	lines := summaryLines(summary)
	textBody := strings.Join(lines, "\n")
	htmlBody := buildSummaryHTML(subject, lines)

	from := fmt.Sprintf("%s <%s>", s.fromName, s.fromAddress)

	_, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: to,
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(htmlBody)},
					Text: &types.Content{Data: aws.String(textBody)},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("SES SendEmail: %w", err)
	}
	return nil
}

func summaryLines(s *domain.ImportSummary) []string {
	lines := []string{
		fmt.Sprintf("Run:                  %s", s.RunID),
		fmt.Sprintf("Source:               %s (sheet %q)", s.Source, s.Sheet),
		fmt.Sprintf("Rows read:            %d", s.RowsRead),
		fmt.Sprintf("Inserted:             %d", s.Inserted),
		fmt.Sprintf("Updated:              %d", s.Updated),
		fmt.Sprintf("Skipped (missing id): %d", s.SkippedMissingID),
		fmt.Sprintf("Skipped (duplicate):  %d", s.SkippedDuplicate),
		fmt.Sprintf("Failed to persist:    %d", s.FailedPersist),
		fmt.Sprintf("Unresolved refs:      %d", s.UnresolvedFKs),
		fmt.Sprintf("Unknown ids kept:     %d", s.UnknownIDs),
		fmt.Sprintf("Advances written:     %d", s.AdvancesWritten),
	}
	if s.ExpectedCount > 0 {
		lines = append(lines, fmt.Sprintf("Expected records:     %d (persisted %d)", s.ExpectedCount, s.Persisted()))
	}

	dims := make([]string, 0, len(s.CatalogCreated))
	for d, n := range s.CatalogCreated {
		if n > 0 {
			dims = append(dims, fmt.Sprintf("%s=%d", d, n))
		}
	}
	if len(dims) > 0 {
		sort.Strings(dims)
		lines = append(lines, "Catalog entries added: "+strings.Join(dims, ", "))
	}
	if !s.Balanced() {
		lines = append(lines, "WARNING: row counts do not balance")
	}
	return lines
}

func buildSummaryHTML(title string, lines []string) string {
	var b strings.Builder
	for _, l := range lines {
		b.WriteString(html.EscapeString(l))
		b.WriteString("\n")
	}
	return fmt.Sprintf(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 0 auto; padding: 20px;">
  <h2 style="color: #333;">%s</h2>
  <pre style="background: #f6f6f6; padding: 12px; border-radius: 6px;">%s</pre>
</body>
</html>`, html.EscapeString(title), b.String())
}
