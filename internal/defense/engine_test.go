package defense

import (
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/parkfair/contest-service/internal/domain"
)

var violationDate = time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

func stickerFacts() Facts {
	return Facts{
		Category:      domain.CategoryCitySticker,
		ViolationCode: "0964125",
		ViolationDate: violationDate,
		Location:      "4500 N Winchester Ave",
	}
}

func TestEvaluateNoEvidenceUsesCategoryDefault(t *testing.T) {
	eval := Evaluate(stickerFacts(), nil)

	if eval.Selected.ID != "sticker-displayed" {
		t.Errorf("Selected = %s, want sticker-displayed (highest base rate)", eval.Selected.ID)
	}
	if eval.Confidence >= 0.5 {
		t.Errorf("Confidence = %v, want low confidence with no evidence", eval.Confidence)
	}
	for _, item := range eval.Checklist {
		if item.Provided {
			t.Errorf("checklist item %s marked provided with nil evidence", item.ID)
		}
	}
}

func TestEvaluateSubsequentCompliance(t *testing.T) {
	// Receipt dated after the violation: "I had a sticker" must be
	// disqualified and the compliance argument selected instead.
	receiptDate := violationDate.AddDate(0, 0, 12)
	evidence := &domain.Evidence{
		HasReceipt:      true,
		HasRegistration: true,
		HasPhoto:        true,
		ReceiptDate:     &receiptDate,
	}

	eval := Evaluate(stickerFacts(), evidence)

	if eval.Selected.ID != "sticker-subsequent-compliance" {
		t.Errorf("Selected = %s, want sticker-subsequent-compliance", eval.Selected.ID)
	}
	found := false
	for _, reason := range eval.DisqualifyReasons {
		if strings.Contains(reason, "sticker-displayed") {
			found = true
		}
	}
	if !found {
		t.Errorf("DisqualifyReasons = %v, want entry for sticker-displayed", eval.DisqualifyReasons)
	}
}

func TestEvaluateReceiptBeforeViolationKeepsDisplayedArgument(t *testing.T) {
	receiptDate := violationDate.AddDate(0, 0, -30)
	evidence := &domain.Evidence{
		HasReceipt:      true,
		HasRegistration: true,
		HasPhoto:        true,
		ReceiptDate:     &receiptDate,
	}

	eval := Evaluate(stickerFacts(), evidence)

	if eval.Selected.ID != "sticker-displayed" {
		t.Errorf("Selected = %s, want sticker-displayed", eval.Selected.ID)
	}
	if len(eval.DisqualifyReasons) != 0 {
		t.Errorf("DisqualifyReasons = %v, want none", eval.DisqualifyReasons)
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	evidence := &domain.Evidence{HasReceipt: true, HasPhoto: true}
	first := Evaluate(stickerFacts(), evidence)
	for i := 0; i < 50; i++ {
		again := Evaluate(stickerFacts(), evidence)
		if again.Selected.ID != first.Selected.ID {
			t.Fatalf("selection changed between runs: %s vs %s", first.Selected.ID, again.Selected.ID)
		}
		if diff := cmp.Diff(first.Checklist, again.Checklist); diff != "" {
			t.Fatalf("checklist changed between runs (-first +again):\n%s", diff)
		}
	}
}

func TestEvaluateUnknownCategoryFallsBackToGeneric(t *testing.T) {
	facts := Facts{
		Category:      domain.CategoryOther,
		ViolationCode: "9999999",
		ViolationDate: violationDate,
	}

	eval := Evaluate(facts, &domain.Evidence{HasPhoto: true})

	if eval.Selected.ID != GenericArgument.ID {
		t.Errorf("Selected = %s, want %s", eval.Selected.ID, GenericArgument.ID)
	}
}

func TestEvaluateChecklistScopedToSelectedArgument(t *testing.T) {
	facts := Facts{
		Category:      domain.CategoryStreetCleaning,
		ViolationCode: "0964040B",
		ViolationDate: violationDate,
	}
	evidence := &domain.Evidence{HasSignagePhoto: true}

	eval := Evaluate(facts, evidence)

	if eval.Selected.ID != "cleaning-signs-missing" {
		t.Fatalf("Selected = %s, want cleaning-signs-missing", eval.Selected.ID)
	}
	for _, item := range eval.Checklist {
		if item.ID == domain.EvidencePoliceReport || item.ID == domain.EvidenceMedical {
			t.Errorf("checklist leaked unrelated item %s", item.ID)
		}
	}
}

func TestEvaluateWarningsOnAmbiguousReceiptTiming(t *testing.T) {
	receiptDate := violationDate.AddDate(0, 0, 1)
	evidence := &domain.Evidence{HasReceipt: true, ReceiptDate: &receiptDate}

	eval := Evaluate(stickerFacts(), evidence)

	found := false
	for _, warning := range eval.Warnings {
		if strings.Contains(warning, "receipt date") {
			found = true
		}
	}
	if !found {
		t.Errorf("Warnings = %v, want receipt timing warning", eval.Warnings)
	}
}

func TestEvaluateBackupDistinctFromSelected(t *testing.T) {
	evidence := &domain.Evidence{HasReceipt: true, HasRegistration: true, HasPhoto: true}

	eval := Evaluate(stickerFacts(), evidence)

	if eval.Backup == nil {
		t.Fatal("Backup = nil, want a distinct backup argument")
	}
	if eval.Backup.ID == eval.Selected.ID {
		t.Errorf("Backup %s equals Selected", eval.Backup.ID)
	}
}

func TestWinRateClamped(t *testing.T) {
	evidence := &domain.Evidence{
		HasPhoto: true, HasReceipt: true, HasRegistration: true,
		HasWitness: true, HasSignagePhoto: true, HasMeterApp: true,
		HasDocument: true, HasMedical: true, HasPoliceReport: true,
	}
	eval := Evaluate(stickerFacts(), evidence)
	if eval.EstimatedWinRate > maxWinRate || eval.EstimatedWinRate < minWinRate {
		t.Errorf("EstimatedWinRate = %v outside [%v, %v]", eval.EstimatedWinRate, minWinRate, maxWinRate)
	}
}

func TestCategoryForCode(t *testing.T) {
	tests := []struct {
		code string
		want domain.ViolationCategory
	}{
		{"0964125", domain.CategoryCitySticker},
		{"0964040B", domain.CategoryStreetCleaning},
		{"RLC", domain.CategoryRedLightCamera},
		{"unknown-code", domain.CategoryOther},
	}
	for _, tt := range tests {
		if got := CategoryForCode(tt.code); got != tt.want {
			t.Errorf("CategoryForCode(%q) = %s, want %s", tt.code, got, tt.want)
		}
	}
}
