package defense

import (
	"fmt"
	"sort"

	"github.com/parkfair/contest-service/internal/domain"
)

const (
	requiredBonus   = 0.15
	supportingBonus = 0.08
	maxWinRate      = 0.95
	minWinRate      = 0.05

	// receiptTimingWindow is how close (in days) a receipt date may sit to
	// the violation date before the timing is flagged as ambiguous.
	receiptTimingWindowDays = 3
)

// ChecklistItem is one evidence item surfaced to the user for the selected
// argument.
type ChecklistItem struct {
	ID       domain.EvidenceKind
	Name     string
	Provided bool
	Impact   float64
}

// Evaluation is the engine's recommendation for one (facts, evidence) pair.
// Ephemeral: recomputed whenever evidence changes.
type Evaluation struct {
	Selected         Argument
	Backup           *Argument
	Checklist        []ChecklistItem
	Warnings         []string
	DisqualifyReasons []string
	EstimatedWinRate float64
	Confidence       float64
}

type scoredArgument struct {
	arg   Argument
	score float64
}

// Evaluate scores every argument in the category's kit against the evidence
// and picks the strongest non-disqualified one. Evidence may be nil (nothing
// received yet); the category's highest-base argument then wins on base rate
// alone. Identical inputs always produce the identical selection.
func Evaluate(facts Facts, evidence *domain.Evidence) Evaluation {
	kit := KitFor(facts.Category)
	if len(kit) == 0 {
		kit = []Argument{GenericArgument}
	}

	var (
		candidates []scoredArgument
		reasons    []string
	)
	for _, arg := range kit {
		if reason, disqualified := disqualify(arg, facts, evidence); disqualified {
			reasons = append(reasons, fmt.Sprintf("%s: %s", arg.ID, reason))
			continue
		}
		candidates = append(candidates, scoredArgument{arg: arg, score: score(arg, evidence)})
	}

	if len(candidates) == 0 {
		// every kit argument disqualified, fall back to the generic ask
		candidates = append(candidates, scoredArgument{
			arg:   GenericArgument,
			score: score(GenericArgument, evidence),
		})
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].arg.ID < candidates[j].arg.ID
	})

	selected := candidates[0]
	eval := Evaluation{
		Selected:          selected.arg,
		Checklist:         buildChecklist(selected.arg, evidence),
		Warnings:          buildWarnings(facts, evidence),
		DisqualifyReasons: reasons,
		EstimatedWinRate:  clamp(selected.score),
		Confidence:        confidence(selected.arg, evidence),
	}
	if len(candidates) > 1 && candidates[1].arg.ID != selected.arg.ID {
		backup := candidates[1].arg
		eval.Backup = &backup
	}
	return eval
}

func disqualify(arg Argument, facts Facts, evidence *domain.Evidence) (string, bool) {
	for _, d := range arg.Disqualifiers {
		if d.Applies(facts, evidence) {
			return d.Reason, true
		}
	}
	return "", false
}

func score(arg Argument, evidence *domain.Evidence) float64 {
	s := arg.BaseWinRate
	if evidence == nil {
		return s
	}
	for _, kind := range arg.Required {
		if evidence.Has(kind) {
			s += requiredBonus
		}
	}
	for _, kind := range arg.Supporting {
		if evidence.Has(kind) {
			s += supportingBonus
		}
	}
	return s
}

// buildChecklist lists the selected argument's evidence items only; guidance
// for other defenses is noise once an argument is chosen.
func buildChecklist(arg Argument, evidence *domain.Evidence) []ChecklistItem {
	var items []ChecklistItem
	seen := map[domain.EvidenceKind]bool{}
	add := func(kind domain.EvidenceKind, impact float64) {
		if seen[kind] {
			return
		}
		seen[kind] = true
		items = append(items, ChecklistItem{
			ID:       kind,
			Name:     kindName(kind),
			Provided: evidence != nil && evidence.Has(kind),
			Impact:   impact,
		})
	}
	for _, kind := range arg.Required {
		add(kind, requiredBonus)
	}
	for _, kind := range arg.Supporting {
		add(kind, supportingBonus)
	}
	// A photo helps nearly every contest; always surface it.
	add(domain.EvidencePhoto, supportingBonus)
	return items
}

func buildWarnings(facts Facts, evidence *domain.Evidence) []string {
	if evidence == nil {
		return nil
	}
	var warnings []string
	if evidence.ReceiptDate != nil {
		delta := evidence.ReceiptDate.Sub(facts.ViolationDate)
		days := delta.Hours() / 24
		if days < 0 {
			days = -days
		}
		if days <= receiptTimingWindowDays {
			warnings = append(warnings, "receipt date is within a few days of the violation date; timing may be questioned")
		}
	}
	if evidence.Late {
		warnings = append(warnings, "evidence arrived after the evidence deadline")
	}
	return warnings
}

func confidence(arg Argument, evidence *domain.Evidence) float64 {
	if evidence == nil {
		return 0.25
	}
	if len(arg.Required) == 0 {
		return 0.60
	}
	provided := 0
	for _, kind := range arg.Required {
		if evidence.Has(kind) {
			provided++
		}
	}
	return 0.30 + 0.65*float64(provided)/float64(len(arg.Required))
}

func clamp(v float64) float64 {
	if v < minWinRate {
		return minWinRate
	}
	if v > maxWinRate {
		return maxWinRate
	}
	return v
}

func kindName(kind domain.EvidenceKind) string {
	switch kind {
	case domain.EvidencePhoto:
		return "Photo of the vehicle or location"
	case domain.EvidenceReceipt:
		return "Purchase or payment receipt"
	case domain.EvidencePoliceReport:
		return "Police report"
	case domain.EvidenceWitness:
		return "Witness statement"
	case domain.EvidenceMedical:
		return "Medical documentation"
	case domain.EvidenceSignagePhoto:
		return "Photo of the signage (or its absence)"
	case domain.EvidenceMeterAppRecord:
		return "Meter app payment record"
	case domain.EvidenceRegistration:
		return "Registration or sticker documentation"
	case domain.EvidenceDocument:
		return "Supporting document"
	}
	return string(kind)
}
