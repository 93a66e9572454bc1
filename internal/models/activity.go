package models

import "time"

// DayLayout is the calendar-day key format used for activity counters.
const DayLayout = "2006-01-02"

// ActivityCounter holds one user's monotonic counters for one calendar day.
type ActivityCounter struct {
	UserID            string    `json:"user_id"`
	Day               string    `json:"day"`
	ListingsCreated   int       `json:"listings_created"`
	SearchesRun       int       `json:"searches_run"`
	MessagesSent      int       `json:"messages_sent"`
	AdminChatsStarted int       `json:"admin_chats_started"`
	LastActivityAt    time.Time `json:"last_activity_at"`
}

// Count returns the counter value for action.
func (c *ActivityCounter) Count(action Action) int {
	switch action {
	case ActionListing:
		return c.ListingsCreated
	case ActionSearch:
		return c.SearchesRun
	case ActionMessage:
		return c.MessagesSent
	case ActionAdminChat:
		return c.AdminChatsStarted
	}
	return 0
}

// Increment bumps the counter for action by one.
func (c *ActivityCounter) Increment(action Action) {
	switch action {
	case ActionListing:
		c.ListingsCreated++
	case ActionSearch:
		c.SearchesRun++
	case ActionMessage:
		c.MessagesSent++
	case ActionAdminChat:
		c.AdminChatsStarted++
	}
}
