package domain

import "time"

// TicketStatus enumerates lifecycle states for contested tickets.
type TicketStatus string

const (
	TicketStatusFound            TicketStatus = "FOUND"
	TicketStatusPendingEvidence  TicketStatus = "PENDING_EVIDENCE"
	TicketStatusNeedsApproval    TicketStatus = "NEEDS_APPROVAL"
	TicketStatusEvidenceReceived TicketStatus = "EVIDENCE_RECEIVED"
	TicketStatusMailed           TicketStatus = "MAILED"
	TicketStatusWon              TicketStatus = "WON"
	TicketStatusLost             TicketStatus = "LOST"
	TicketStatusSkipped          TicketStatus = "SKIPPED"
)

// Valid reports whether s is a known status value.
func (s TicketStatus) Valid() bool {
	switch s {
	case TicketStatusFound, TicketStatusPendingEvidence, TicketStatusNeedsApproval,
		TicketStatusEvidenceReceived, TicketStatusMailed,
		TicketStatusWon, TicketStatusLost, TicketStatusSkipped:
		return true
	}
	return false
}

// IsTerminal reports whether a ticket in this status can never advance again.
func (s TicketStatus) IsTerminal() bool {
	switch s {
	case TicketStatusWon, TicketStatusLost, TicketStatusSkipped:
		return true
	}
	return false
}

// Ticket is the aggregate for a detected violation tracked through the
// contest lifecycle. Status and the three deadlines are owned by the
// lifecycle machine; ViolationDate is immutable after detection.
type Ticket struct {
	ID               string
	AccountID        string
	PlateID          string
	ExternalNumber   string
	ViolationCode    string
	Category         ViolationCategory
	ViolationDate    time.Time
	AmountCents      int64
	Location         string
	Status           TicketStatus
	EvidenceDeadline time.Time
	AutoSendDeadline time.Time
	ContestDeadline  time.Time
	GuaranteeCovered bool
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// ViolationCategory groups violation codes that share a defense kit.
type ViolationCategory string

const (
	CategoryCitySticker    ViolationCategory = "CITY_STICKER"
	CategoryExpiredMeter   ViolationCategory = "EXPIRED_METER"
	CategoryStreetCleaning ViolationCategory = "STREET_CLEANING"
	CategoryExpiredPlates  ViolationCategory = "EXPIRED_PLATES"
	CategoryNoParkingZone  ViolationCategory = "NO_PARKING_ZONE"
	CategoryFireHydrant    ViolationCategory = "FIRE_HYDRANT"
	CategoryDisabledZone   ViolationCategory = "DISABLED_ZONE"
	CategoryRedLightCamera ViolationCategory = "RED_LIGHT_CAMERA"
	CategorySpeedCamera    ViolationCategory = "SPEED_CAMERA"
	CategoryOther          ViolationCategory = "OTHER"
)

// IsCamera reports whether the category is an automated camera violation.
// Camera tickets are excluded from the win guarantee.
func (c ViolationCategory) IsCamera() bool {
	return c == CategoryRedLightCamera || c == CategorySpeedCamera
}
