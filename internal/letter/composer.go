// Package letter turns a selected defense argument and its evidence
// checklist into contest letter text. Prose generation is delegated to an
// external collaborator when available; a deterministic template is always
// held as the fallback, and the composer never claims evidence that was not
// provided.
package letter

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/parkfair/contest-service/internal/collaborator"
	"github.com/parkfair/contest-service/internal/defense"
	"github.com/parkfair/contest-service/internal/domain"
)

// minBodyLength rejects implausibly short generator output.
const minBodyLength = 200

// ComposeInput bundles everything a letter needs.
type ComposeInput struct {
	Ticket     domain.Ticket
	Account    domain.Account
	Evaluation defense.Evaluation
}

// Composer produces letter bodies.
type Composer struct {
	generator collaborator.TextGenerator
	timeout   time.Duration
	logger    *zap.Logger
}

// NewComposer builds a composer. A nil generator forces the template path.
func NewComposer(generator collaborator.TextGenerator, timeout time.Duration, logger *zap.Logger) *Composer {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Composer{generator: generator, timeout: timeout, logger: logger}
}

// Compose returns the letter body and which path produced it. It never
// returns an error: any generator failure degrades to the template.
func (c *Composer) Compose(ctx context.Context, input ComposeInput) (string, domain.LetterSource) {
	provided, missing := splitChecklist(input.Evaluation.Checklist)

	if c.generator != nil {
		body, err := c.generate(ctx, input, provided, missing)
		if err == nil && c.valid(body, input.Ticket, missing) {
			return body, domain.LetterSourceGenerator
		}
		if err != nil && err != collaborator.ErrTextGenUnconfigured {
			c.logger.Warn("text generation failed, using template",
				zap.String("ticket_id", input.Ticket.ID),
				zap.Error(err))
		}
	}

	return c.template(input, provided), domain.LetterSourceTemplate
}

func (c *Composer) generate(ctx context.Context, input ComposeInput, provided, missing []string) (string, error) {
	genCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	return c.generator.GenerateLetter(genCtx, collaborator.LetterRequest{
		ArgumentID:       input.Evaluation.Selected.ID,
		ArgumentName:     input.Evaluation.Selected.Name,
		ExternalNumber:   input.Ticket.ExternalNumber,
		ViolationDesc:    string(input.Ticket.Category),
		ViolationDate:    input.Ticket.ViolationDate,
		Location:         input.Ticket.Location,
		UserName:         input.Account.Name,
		ProvidedEvidence: provided,
		MissingEvidence:  missing,
	})
}

// valid runs the structural sanity check on generator output: plausible
// length, references the ticket, and does not name evidence that was not
// provided.
func (c *Composer) valid(body string, ticket domain.Ticket, missing []string) bool {
	if len(strings.TrimSpace(body)) < minBodyLength {
		return false
	}
	if !strings.Contains(body, ticket.ExternalNumber) {
		return false
	}
	lower := strings.ToLower(body)
	for _, name := range missing {
		if strings.Contains(lower, strings.ToLower(name)) {
			return false
		}
	}
	return true
}

// template is the deterministic fallback merge. Only provided evidence is
// ever mentioned.
func (c *Composer) template(input ComposeInput, provided []string) string {
	t := input.Ticket
	var b strings.Builder

	fmt.Fprintf(&b, "Re: Contest of Violation Notice %s\n\n", t.ExternalNumber)
	b.WriteString("To the Department of Administrative Hearings:\n\n")
	fmt.Fprintf(&b,
		"I am writing to contest violation notice %s, issued on %s at %s. I respectfully request that this violation be dismissed on the following grounds: %s.\n\n",
		t.ExternalNumber,
		t.ViolationDate.Format("January 2, 2006"),
		orUnknown(t.Location),
		strings.ToLower(input.Evaluation.Selected.Name),
	)

	for _, item := range provided {
		fmt.Fprintf(&b, "In support of this contest I am providing the following: %s.\n\n", strings.ToLower(item))
	}

	if len(provided) == 0 {
		b.WriteString("I respectfully request that the issuing authority review the circumstances of this citation and the supporting record on file.\n\n")
	}

	b.WriteString("Based on the above, I respectfully request that this violation be dismissed and that no fine be assessed.\n\n")
	fmt.Fprintf(&b, "Sincerely,\n%s\n", input.Account.Name)

	return b.String()
}

func splitChecklist(checklist []defense.ChecklistItem) (provided, missing []string) {
	for _, item := range checklist {
		if item.Provided {
			provided = append(provided, item.Name)
		} else {
			missing = append(missing, item.Name)
		}
	}
	return provided, missing
}

func orUnknown(location string) string {
	if strings.TrimSpace(location) == "" {
		return "the cited location"
	}
	return location
}
