package domain

import "time"

// Account is an enrolled subscriber whose plates are monitored.
type Account struct {
	ID              string
	Name            string
	Email           string
	Phone           string
	RequireApproval bool
	Active          bool
	CreatedAt       time.Time
}

// MonitoredPlate is one identifier the detection sweep polls for.
type MonitoredPlate struct {
	ID        string
	AccountID string
	Plate     string
	State     string
	Active    bool
	CreatedAt time.Time
}
