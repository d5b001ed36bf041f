// Package defense selects the strongest supportable legal argument for a
// violation from the structured evidence on file. Selection is fully
// deterministic: static kits, fixed scoring, lexicographic tie-break.
package defense

import (
	"time"

	"github.com/parkfair/contest-service/internal/domain"
)

// Facts are the violation inputs to an evaluation.
type Facts struct {
	Category      domain.ViolationCategory
	ViolationCode string
	ViolationDate time.Time
	Location      string
}

// Disqualifier encodes a condition under which an argument must never be
// selected, e.g. claiming a sticker was displayed when the purchase receipt
// postdates the ticket.
type Disqualifier struct {
	ID      string
	Reason  string
	Applies func(Facts, *domain.Evidence) bool
}

// Argument is one static defense kit entry.
type Argument struct {
	ID            string
	Name          string
	Category      domain.ViolationCategory
	BaseWinRate   float64
	Required      []domain.EvidenceKind
	Supporting    []domain.EvidenceKind
	Disqualifiers []Disqualifier
}

func purchaseAfterViolation(facts Facts, evidence *domain.Evidence) bool {
	if evidence == nil || evidence.ReceiptDate == nil {
		return false
	}
	return evidence.ReceiptDate.After(facts.ViolationDate)
}

// GenericArgument is the fallback when a category has no kit: ask the
// adjudicator for a review and attach everything provided.
var GenericArgument = Argument{
	ID:          "generic-review",
	Name:        "Request for review with supporting documentation",
	Category:    domain.CategoryOther,
	BaseWinRate: 0.20,
	Supporting: []domain.EvidenceKind{
		domain.EvidencePhoto,
		domain.EvidenceReceipt,
		domain.EvidenceWitness,
		domain.EvidenceDocument,
	},
}

// kits maps a violation category to its arguments. Static reference data,
// never mutated at runtime.
var kits = map[domain.ViolationCategory][]Argument{
	domain.CategoryCitySticker: {
		{
			ID:          "sticker-displayed",
			Name:        "Sticker was purchased and properly displayed",
			Category:    domain.CategoryCitySticker,
			BaseWinRate: 0.40,
			Required:    []domain.EvidenceKind{domain.EvidenceRegistration, domain.EvidencePhoto},
			Supporting:  []domain.EvidenceKind{domain.EvidenceReceipt},
			Disqualifiers: []Disqualifier{{
				ID:      "purchased-after-violation",
				Reason:  "sticker purchase receipt is dated after the violation",
				Applies: purchaseAfterViolation,
			}},
		},
		{
			ID:          "sticker-subsequent-compliance",
			Name:        "Compliance achieved after notice (sticker since purchased)",
			Category:    domain.CategoryCitySticker,
			BaseWinRate: 0.30,
			Required:    []domain.EvidenceKind{domain.EvidenceReceipt},
			Supporting:  []domain.EvidenceKind{domain.EvidenceRegistration, domain.EvidencePhoto},
		},
		{
			ID:          "sticker-new-owner",
			Name:        "Vehicle recently acquired, grace period applies",
			Category:    domain.CategoryCitySticker,
			BaseWinRate: 0.25,
			Required:    []domain.EvidenceKind{domain.EvidenceDocument},
			Supporting:  []domain.EvidenceKind{domain.EvidenceRegistration},
		},
	},
	domain.CategoryExpiredMeter: {
		{
			ID:          "meter-paid",
			Name:        "Meter was paid for the cited period",
			Category:    domain.CategoryExpiredMeter,
			BaseWinRate: 0.45,
			Required:    []domain.EvidenceKind{domain.EvidenceMeterAppRecord},
			Supporting:  []domain.EvidenceKind{domain.EvidenceReceipt},
		},
		{
			ID:          "meter-broken",
			Name:        "Meter was inoperable",
			Category:    domain.CategoryExpiredMeter,
			BaseWinRate: 0.35,
			Required:    []domain.EvidenceKind{domain.EvidencePhoto},
			Supporting:  []domain.EvidenceKind{domain.EvidenceWitness},
		},
	},
	domain.CategoryStreetCleaning: {
		{
			ID:          "cleaning-signs-missing",
			Name:        "Temporary signage absent or not visible",
			Category:    domain.CategoryStreetCleaning,
			BaseWinRate: 0.40,
			Required:    []domain.EvidenceKind{domain.EvidenceSignagePhoto},
			Supporting:  []domain.EvidenceKind{domain.EvidencePhoto, domain.EvidenceWitness},
		},
		{
			ID:          "cleaning-vehicle-moved",
			Name:        "Vehicle moved before cleaning began",
			Category:    domain.CategoryStreetCleaning,
			BaseWinRate: 0.25,
			Required:    []domain.EvidenceKind{domain.EvidenceWitness},
			Supporting:  []domain.EvidenceKind{domain.EvidencePhoto},
		},
	},
	domain.CategoryExpiredPlates: {
		{
			ID:          "plates-renewed",
			Name:        "Registration was current at the time of the violation",
			Category:    domain.CategoryExpiredPlates,
			BaseWinRate: 0.45,
			Required:    []domain.EvidenceKind{domain.EvidenceRegistration},
			Supporting:  []domain.EvidenceKind{domain.EvidenceReceipt},
			Disqualifiers: []Disqualifier{{
				ID:      "renewed-after-violation",
				Reason:  "renewal receipt is dated after the violation",
				Applies: purchaseAfterViolation,
			}},
		},
		{
			ID:          "plates-subsequent-compliance",
			Name:        "Registration renewed after notice",
			Category:    domain.CategoryExpiredPlates,
			BaseWinRate: 0.30,
			Required:    []domain.EvidenceKind{domain.EvidenceReceipt},
			Supporting:  []domain.EvidenceKind{domain.EvidenceRegistration},
		},
	},
	domain.CategoryNoParkingZone: {
		{
			ID:          "zone-signage-unclear",
			Name:        "Zone signage missing, obstructed, or contradictory",
			Category:    domain.CategoryNoParkingZone,
			BaseWinRate: 0.40,
			Required:    []domain.EvidenceKind{domain.EvidenceSignagePhoto},
			Supporting:  []domain.EvidenceKind{domain.EvidencePhoto, domain.EvidenceWitness},
		},
		{
			ID:          "zone-emergency",
			Name:        "Stop compelled by a medical emergency",
			Category:    domain.CategoryNoParkingZone,
			BaseWinRate: 0.30,
			Required:    []domain.EvidenceKind{domain.EvidenceMedical},
			Supporting:  []domain.EvidenceKind{domain.EvidenceWitness},
		},
	},
	domain.CategoryFireHydrant: {
		{
			ID:          "hydrant-distance",
			Name:        "Vehicle parked beyond the required distance",
			Category:    domain.CategoryFireHydrant,
			BaseWinRate: 0.35,
			Required:    []domain.EvidenceKind{domain.EvidencePhoto},
			Supporting:  []domain.EvidenceKind{domain.EvidenceWitness},
		},
	},
	domain.CategoryDisabledZone: {
		{
			ID:          "disabled-permit-displayed",
			Name:        "Valid permit was displayed",
			Category:    domain.CategoryDisabledZone,
			BaseWinRate: 0.30,
			Required:    []domain.EvidenceKind{domain.EvidenceDocument},
			Supporting:  []domain.EvidenceKind{domain.EvidencePhoto},
		},
	},
	domain.CategoryRedLightCamera: {
		{
			ID:          "camera-not-driver",
			Name:        "Registered owner was not the driver",
			Category:    domain.CategoryRedLightCamera,
			BaseWinRate: 0.15,
			Required:    []domain.EvidenceKind{domain.EvidenceDocument},
			Supporting:  []domain.EvidenceKind{domain.EvidenceWitness},
		},
	},
	domain.CategorySpeedCamera: {
		{
			ID:          "speed-signage-missing",
			Name:        "Camera zone signage not posted as required",
			Category:    domain.CategorySpeedCamera,
			BaseWinRate: 0.15,
			Required:    []domain.EvidenceKind{domain.EvidenceSignagePhoto},
			Supporting:  []domain.EvidenceKind{domain.EvidencePhoto},
		},
	},
}

// KitFor returns the static arguments for a category, or nil when the
// category has no kit.
func KitFor(category domain.ViolationCategory) []Argument {
	return kits[category]
}

// CategoryForCode maps a raw violation code/description onto a kit category.
// Unrecognized codes fall into CategoryOther.
func CategoryForCode(code string) domain.ViolationCategory {
	switch code {
	case "0964125", "0964125B": // no city sticker
		return domain.CategoryCitySticker
	case "0976160F", "0964190A": // expired meter
		return domain.CategoryExpiredMeter
	case "0964040B": // street cleaning
		return domain.CategoryStreetCleaning
	case "0964125C": // expired plates
		return domain.CategoryExpiredPlates
	case "0964150B": // no parking zone
		return domain.CategoryNoParkingZone
	case "0964100A": // fire hydrant
		return domain.CategoryFireHydrant
	case "0964080A": // disabled zone
		return domain.CategoryDisabledZone
	case "RLC": // red light camera
		return domain.CategoryRedLightCamera
	case "SPD": // speed camera
		return domain.CategorySpeedCamera
	}
	return domain.CategoryOther
}
