package models

import "time"

type Listing struct {
	ID          string    `json:"id"`
	SellerID    string    `json:"seller_id"`
	Title       string    `json:"title"`
	Category    string    `json:"category"`
	Price       int64     `json:"price"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	Photos      []string  `json:"photos,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// ListingFilter narrows QueryListings. Empty fields do not filter.
type ListingFilter struct {
	Category string
	Location string
	// Text is matched as a case-insensitive substring of title or description.
	Text   string
	Limit  int
	Offset int
}

// ListingPage is one page of query results.
type ListingPage struct {
	Listings []Listing `json:"listings"`
	HasMore  bool      `json:"has_more"`
}
