package domain

import "time"

// EvidenceKind identifies one category of supporting material. The kinds
// double as checklist item ids in contest evaluations.
type EvidenceKind string

const (
	EvidencePhoto          EvidenceKind = "photo"
	EvidenceReceipt        EvidenceKind = "receipt"
	EvidencePoliceReport   EvidenceKind = "police_report"
	EvidenceWitness        EvidenceKind = "witness"
	EvidenceMedical        EvidenceKind = "medical"
	EvidenceSignagePhoto   EvidenceKind = "signage_photo"
	EvidenceMeterAppRecord EvidenceKind = "meter_app_record"
	EvidenceRegistration   EvidenceKind = "registration"
	EvidenceDocument       EvidenceKind = "document"
)

// AttachmentRef points at a stored attachment delivered with a reply.
type AttachmentRef struct {
	StorageKey string
	FileName   string
	MimeType   string
	SizeBytes  int64
}

// Evidence is the structured, derived representation of a user's reply.
// One record per ticket; a later qualifying reply replaces it wholesale
// (latest wins) until the letter is mailed.
type Evidence struct {
	ID       string
	TicketID string

	HasPhoto        bool
	HasReceipt      bool
	HasPoliceReport bool
	HasWitness      bool
	HasMedical      bool
	HasSignagePhoto bool
	HasMeterApp     bool
	HasRegistration bool
	HasDocument     bool

	// ReceiptDate is the best-effort purchase/payment date extracted from
	// the reply text, nil when no date could be recognized.
	ReceiptDate *time.Time

	RawText     string
	Attachments []AttachmentRef
	ReceivedAt  time.Time
	Late        bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Kinds lists every evidence kind present on the record.
func (e *Evidence) Kinds() []EvidenceKind {
	var kinds []EvidenceKind
	for _, flag := range []struct {
		set  bool
		kind EvidenceKind
	}{
		{e.HasPhoto, EvidencePhoto},
		{e.HasReceipt, EvidenceReceipt},
		{e.HasPoliceReport, EvidencePoliceReport},
		{e.HasWitness, EvidenceWitness},
		{e.HasMedical, EvidenceMedical},
		{e.HasSignagePhoto, EvidenceSignagePhoto},
		{e.HasMeterApp, EvidenceMeterAppRecord},
		{e.HasRegistration, EvidenceRegistration},
		{e.HasDocument, EvidenceDocument},
	} {
		if flag.set {
			kinds = append(kinds, flag.kind)
		}
	}
	return kinds
}

// Has reports whether the record carries the given evidence kind.
func (e *Evidence) Has(kind EvidenceKind) bool {
	for _, k := range e.Kinds() {
		if k == kind {
			return true
		}
	}
	return false
}
