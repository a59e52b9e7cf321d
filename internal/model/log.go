package model

import "time"

// WaterLog is one logging event. Entries are append-only: the ledger creates
// them inside the same transaction that updates the profile, and nothing in the
// application mutates or deletes them afterwards.
//
// Timestamp is assigned by the store when the entry is committed, never by the
// client. Firestore fills it with the server's commit time.
type WaterLog struct {
	ID        string    `json:"id"        firestore:"-"`
	UserID    string    `json:"userId"    firestore:"userId"`
	Amount    int       `json:"amount"    firestore:"amount"` // ml, always > 0
	Timestamp time.Time `json:"timestamp" firestore:"timestamp,serverTimestamp"`
}

// DailyTotal is the sum of all logs that fall on one local calendar day.
type DailyTotal struct {
	Date  string `json:"date"`  // YYYY-MM-DD
	Total int    `json:"total"` // ml
}
