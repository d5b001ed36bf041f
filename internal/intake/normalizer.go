// Package intake converts free-form user replies into structured evidence
// records. Detection is keyword-driven over cleaned reply text, corroborated
// by attachment names and content types.
package intake

import (
	"regexp"
	"strings"
	"time"

	"github.com/parkfair/contest-service/internal/domain"
)

// Reply is one inbound message delivered by the evidence transport.
type Reply struct {
	Sender      string
	Subject     string
	Body        string
	Attachments []AttachmentInput
	ReceivedAt  time.Time
}

// AttachmentInput describes one delivered attachment.
type AttachmentInput struct {
	StorageKey  string
	FileName    string
	ContentType string
	SizeBytes   int64
}

var (
	quoteHeaderRe = regexp.MustCompile(`(?i)^on .{1,120} wrote:\s*$`)
	origMessageRe = regexp.MustCompile(`^-{2,}\s*Original Message\s*-{2,}$`)
	sentFromRe    = regexp.MustCompile(`(?i)^sent from my `)
	signOffRe     = regexp.MustCompile(`(?i)^(thanks|thank you|best|best regards|regards|cheers|sincerely)[,!.]?\s*$`)
)

// CleanReplyText strips quoted history and signature boilerplate so stale
// text from earlier messages cannot inflate evidence flags.
func CleanReplyText(body string) string {
	var kept []string
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if quoteHeaderRe.MatchString(trimmed) || origMessageRe.MatchString(trimmed) {
			break
		}
		if signOffRe.MatchString(trimmed) {
			break
		}
		if strings.HasPrefix(trimmed, ">") || sentFromRe.MatchString(trimmed) {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}

type detector struct {
	set      func(*domain.Evidence)
	keywords []string
}

var detectors = []detector{
	{
		set:      func(e *domain.Evidence) { e.HasReceipt = true },
		keywords: []string{"receipt", "bought", "purchased", "paid for", "invoice", "proof of purchase", "order confirmation"},
	},
	{
		set:      func(e *domain.Evidence) { e.HasPhoto = true },
		keywords: []string{"photo", "picture", "attached an image", "see the image", "screenshot"},
	},
	{
		set:      func(e *domain.Evidence) { e.HasPoliceReport = true },
		keywords: []string{"police report", "report number", "filed a report", "car was stolen", "vehicle was stolen"},
	},
	{
		set:      func(e *domain.Evidence) { e.HasWitness = true },
		keywords: []string{"witness", "passenger with me", "my neighbor saw", "someone saw"},
	},
	{
		set:      func(e *domain.Evidence) { e.HasMedical = true },
		keywords: []string{"medical", "hospital", "emergency room", "doctor's note", "ambulance"},
	},
	{
		set:      func(e *domain.Evidence) { e.HasSignagePhoto = true },
		keywords: []string{"no sign", "sign was missing", "sign was covered", "signage", "obstructed sign", "faded sign", "couldn't see the sign", "could not see the sign"},
	},
	{
		set:      func(e *domain.Evidence) { e.HasMeterApp = true },
		keywords: []string{"parkmobile", "paybyphone", "spothero", "meter app", "parking app", "paid through the app"},
	},
	{
		set:      func(e *domain.Evidence) { e.HasRegistration = true },
		keywords: []string{"registration", "renewed my plates", "renewal", "city sticker", "sticker"},
	},
}

var monthDateRe = regexp.MustCompile(`(?i)\b(january|february|march|april|may|june|july|august|september|october|november|december|jan|feb|mar|apr|jun|jul|aug|sep|sept|oct|nov|dec)\.?\s+(\d{1,2})\b`)
var slashDateRe = regexp.MustCompile(`\b(\d{1,2})/(\d{1,2})(?:/(\d{2,4}))?\b`)

// Normalize converts one reply into the structured evidence record for a
// ticket. Unreadable attachments are skipped individually; intake never
// fails as a whole on one bad descriptor. Late is set relative to the
// ticket's evidence deadline.
func Normalize(reply Reply, evidenceDeadline time.Time) *domain.Evidence {
	cleaned := CleanReplyText(reply.Body)
	lower := strings.ToLower(cleaned)

	evidence := &domain.Evidence{
		RawText:    cleaned,
		ReceivedAt: reply.ReceivedAt,
		Late:       reply.ReceivedAt.After(evidenceDeadline),
	}

	for _, d := range detectors {
		for _, kw := range d.keywords {
			if strings.Contains(lower, kw) {
				d.set(evidence)
				break
			}
		}
	}

	for _, att := range reply.Attachments {
		if att.FileName == "" && att.ContentType == "" {
			// undecodable descriptor, skip it and keep the rest
			continue
		}
		applyAttachmentSignals(evidence, att)
		evidence.Attachments = append(evidence.Attachments, domain.AttachmentRef{
			StorageKey: att.StorageKey,
			FileName:   att.FileName,
			MimeType:   att.ContentType,
			SizeBytes:  att.SizeBytes,
		})
	}

	evidence.ReceiptDate = extractReceiptDate(lower, reply.ReceivedAt)
	return evidence
}

func applyAttachmentSignals(evidence *domain.Evidence, att AttachmentInput) {
	name := strings.ToLower(att.FileName)
	ctype := strings.ToLower(att.ContentType)

	switch {
	case strings.HasPrefix(ctype, "image/"),
		strings.HasSuffix(name, ".jpg"), strings.HasSuffix(name, ".jpeg"),
		strings.HasSuffix(name, ".png"), strings.HasSuffix(name, ".heic"):
		evidence.HasPhoto = true
	case ctype == "application/pdf", strings.HasSuffix(name, ".pdf"):
		evidence.HasDocument = true
	}

	if strings.Contains(name, "receipt") || strings.Contains(name, "invoice") {
		evidence.HasReceipt = true
	}
	if strings.Contains(name, "report") {
		evidence.HasDocument = true
	}
	if strings.Contains(name, "registration") || strings.Contains(name, "sticker") {
		evidence.HasRegistration = true
	}
}

// extractReceiptDate pulls a best-effort purchase date out of the reply.
// Relative words resolve against the received timestamp; explicit dates
// without a year assume the most recent occurrence not in the future.
func extractReceiptDate(lower string, receivedAt time.Time) *time.Time {
	if !strings.Contains(lower, "bought") && !strings.Contains(lower, "purchased") &&
		!strings.Contains(lower, "receipt") && !strings.Contains(lower, "paid") &&
		!strings.Contains(lower, "renewed") {
		return nil
	}

	if strings.Contains(lower, "yesterday") {
		d := receivedAt.AddDate(0, 0, -1)
		return &d
	}
	if strings.Contains(lower, "today") || strings.Contains(lower, "this morning") {
		d := receivedAt
		return &d
	}

	if m := monthDateRe.FindStringSubmatch(lower); m != nil {
		month := monthFromName(m[1])
		day := atoiSafe(m[2])
		if month != 0 && day >= 1 && day <= 31 {
			d := time.Date(receivedAt.Year(), month, day, 0, 0, 0, 0, receivedAt.Location())
			if d.After(receivedAt) {
				d = d.AddDate(-1, 0, 0)
			}
			return &d
		}
	}

	if m := slashDateRe.FindStringSubmatch(lower); m != nil {
		month := atoiSafe(m[1])
		day := atoiSafe(m[2])
		if month >= 1 && month <= 12 && day >= 1 && day <= 31 {
			year := receivedAt.Year()
			if m[3] != "" {
				year = atoiSafe(m[3])
				if year < 100 {
					year += 2000
				}
			}
			d := time.Date(year, time.Month(month), day, 0, 0, 0, 0, receivedAt.Location())
			if m[3] == "" && d.After(receivedAt) {
				d = d.AddDate(-1, 0, 0)
			}
			return &d
		}
	}
	return nil
}

func monthFromName(name string) time.Month {
	switch strings.ToLower(name[:3]) {
	case "jan":
		return time.January
	case "feb":
		return time.February
	case "mar":
		return time.March
	case "apr":
		return time.April
	case "may":
		return time.May
	case "jun":
		return time.June
	case "jul":
		return time.July
	case "aug":
		return time.August
	case "sep":
		return time.September
	case "oct":
		return time.October
	case "nov":
		return time.November
	case "dec":
		return time.December
	}
	return 0
}

func atoiSafe(s string) int {
	n := 0
	for _, r := range s {
		if r < '0' || r > '9' {
			return 0
		}
		n = n*10 + int(r-'0')
	}
	return n
}
