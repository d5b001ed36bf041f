package deadline

import (
	"testing"
	"time"
)

func TestCompute(t *testing.T) {
	violation := time.Date(2025, 3, 10, 9, 30, 0, 0, time.UTC)

	d := Compute(violation)

	if got, want := d.AutoSendDeadline, violation.AddDate(0, 0, 17); !got.Equal(want) {
		t.Errorf("AutoSendDeadline = %v, want %v", got, want)
	}
	if got, want := d.ContestDeadline, violation.AddDate(0, 0, 21); !got.Equal(want) {
		t.Errorf("ContestDeadline = %v, want %v", got, want)
	}
	if !d.EvidenceDeadline.Equal(d.AutoSendDeadline) {
		t.Errorf("EvidenceDeadline = %v, want unified with AutoSendDeadline %v", d.EvidenceDeadline, d.AutoSendDeadline)
	}
	if d.AutoSendDeadline.After(d.ContestDeadline) {
		t.Error("AutoSendDeadline must not be after ContestDeadline")
	}
}

func TestComputeDeterministic(t *testing.T) {
	violation := time.Date(2025, 11, 2, 0, 0, 0, 0, time.UTC)

	first := Compute(violation)
	second := Compute(violation)

	if first != second {
		t.Errorf("Compute not deterministic: %+v vs %+v", first, second)
	}
}

func TestComputeAcrossDSTBoundary(t *testing.T) {
	chicago, err := time.LoadLocation("America/Chicago")
	if err != nil {
		t.Skipf("tzdata unavailable: %v", err)
	}
	// 17 calendar days later crosses the spring-forward transition.
	violation := time.Date(2025, 3, 1, 12, 0, 0, 0, chicago)

	d := Compute(violation)

	if got := d.AutoSendDeadline.Day(); got != 18 {
		t.Errorf("AutoSendDeadline day = %d, want calendar day 18", got)
	}
}

func TestReminderPoint(t *testing.T) {
	violation := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)

	got := ReminderPoint(violation)
	want := violation.Add(violation.AddDate(0, 0, 17).Sub(violation) / 2)

	if !got.Equal(want) {
		t.Errorf("ReminderPoint = %v, want %v", got, want)
	}
	if !got.After(violation) || !got.Before(Compute(violation).EvidenceDeadline) {
		t.Errorf("ReminderPoint %v not inside (violation, evidence deadline)", got)
	}
}
