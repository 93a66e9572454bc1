package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// SearchLog is one executed search, kept for later personalization.
type SearchLog struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Query     string             `bson:"query" json:"query"`
	Category  string             `bson:"category,omitempty" json:"category,omitempty"`
	Location  string             `bson:"location,omitempty" json:"location,omitempty"`
	Results   int                `bson:"results" json:"results"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

type AbuseKind string

const (
	AbuseVolume  AbuseKind = "volume"
	AbuseContent AbuseKind = "content"
)

// AbuseFlag marks an account for manual review. Flags are advisory.
type AbuseFlag struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID    string             `bson:"user_id" json:"user_id"`
	Kind      AbuseKind          `bson:"kind" json:"kind"`
	Reason    string             `bson:"reason" json:"reason"`
	Day       string             `bson:"day" json:"day"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}

// AdminStats is the aggregate snapshot served to the dashboard.
type AdminStats struct {
	UsersByStatus   map[UserStatus]int `json:"users_by_status"`
	TotalUsers      int                `json:"total_users"`
	ActiveSessions  int                `json:"active_sessions"`
	TotalListings   int                `json:"total_listings"`
	ListingsToday   int                `json:"listings_today"`
	PendingPayments int                `json:"pending_payments"`
	GeneratedAt     time.Time          `json:"generated_at"`
}
