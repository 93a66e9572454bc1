package models

import (
	"encoding/json"
	"fmt"
	"slices"
	"time"
)

// FlowName identifies a fixed multi-step interaction.
type FlowName string

const (
	FlowRegistration FlowName = "registration"
	FlowListing      FlowName = "listing"
	FlowSearch       FlowName = "search"
	FlowPayment      FlowName = "payment"
)

// FlowData is the per-flow accumulated step data. Each flow has its own
// concrete type so a step can only write fields that flow owns.
type FlowData interface {
	Flow() FlowName
	// Merge overlays the non-zero fields of patch and returns the result.
	// Patches of another flow's type are ignored.
	Merge(patch FlowData) FlowData
}

type RegistrationData struct {
	FullName string `json:"full_name,omitempty"`
	Phone    string `json:"phone,omitempty"`
	Location string `json:"location,omitempty"`
	Eligible *bool  `json:"eligible,omitempty"`
}

func (RegistrationData) Flow() FlowName { return FlowRegistration }

func (d RegistrationData) Merge(patch FlowData) FlowData {
	p, ok := patch.(RegistrationData)
	if !ok {
		return d
	}
	if p.FullName != "" {
		d.FullName = p.FullName
	}
	if p.Phone != "" {
		d.Phone = p.Phone
	}
	if p.Location != "" {
		d.Location = p.Location
	}
	if p.Eligible != nil {
		v := *p.Eligible
		d.Eligible = &v
	}
	return d
}

type ListingData struct {
	Title       string `json:"title,omitempty"`
	Category    string `json:"category,omitempty"`
	Price       int64  `json:"price,omitempty"`
	Description string `json:"description,omitempty"`
	Location    string `json:"location,omitempty"`
	// Photos accumulate across patches instead of being overwritten.
	Photos []string `json:"photos,omitempty"`
}

func (ListingData) Flow() FlowName { return FlowListing }

func (d ListingData) Merge(patch FlowData) FlowData {
	p, ok := patch.(ListingData)
	if !ok {
		return d
	}
	if p.Title != "" {
		d.Title = p.Title
	}
	if p.Category != "" {
		d.Category = p.Category
	}
	if p.Price != 0 {
		d.Price = p.Price
	}
	if p.Description != "" {
		d.Description = p.Description
	}
	if p.Location != "" {
		d.Location = p.Location
	}
	if len(p.Photos) > 0 {
		d.Photos = append(slices.Clone(d.Photos), p.Photos...)
	}
	return d
}

type SearchData struct {
	Query    string `json:"query,omitempty"`
	Category string `json:"category,omitempty"`
	Location string `json:"location,omitempty"`
}

func (SearchData) Flow() FlowName { return FlowSearch }

func (d SearchData) Merge(patch FlowData) FlowData {
	p, ok := patch.(SearchData)
	if !ok {
		return d
	}
	if p.Query != "" {
		d.Query = p.Query
	}
	if p.Category != "" {
		d.Category = p.Category
	}
	if p.Location != "" {
		d.Location = p.Location
	}
	return d
}

type PaymentData struct {
	Plan   string `json:"plan,omitempty"`
	Months int    `json:"months,omitempty"`
	Amount int64  `json:"amount,omitempty"`
}

func (PaymentData) Flow() FlowName { return FlowPayment }

func (d PaymentData) Merge(patch FlowData) FlowData {
	p, ok := patch.(PaymentData)
	if !ok {
		return d
	}
	if p.Plan != "" {
		d.Plan = p.Plan
	}
	if p.Months != 0 {
		d.Months = p.Months
	}
	if p.Amount != 0 {
		d.Amount = p.Amount
	}
	return d
}

// NewFlowData returns the empty data value for flow.
func NewFlowData(flow FlowName) (FlowData, error) {
	switch flow {
	case FlowRegistration:
		return RegistrationData{}, nil
	case FlowListing:
		return ListingData{}, nil
	case FlowSearch:
		return SearchData{}, nil
	case FlowPayment:
		return PaymentData{}, nil
	}
	return nil, fmt.Errorf("unknown flow %q", flow)
}

// EncodeFlowData serializes data for the sessions table.
func EncodeFlowData(data FlowData) ([]byte, error) {
	if data == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(data)
}

// DecodeFlowData restores the concrete data type recorded for flow.
func DecodeFlowData(flow FlowName, raw []byte) (FlowData, error) {
	if len(raw) == 0 {
		return NewFlowData(flow)
	}
	switch flow {
	case FlowRegistration:
		var d RegistrationData
		err := json.Unmarshal(raw, &d)
		return d, err
	case FlowListing:
		var d ListingData
		err := json.Unmarshal(raw, &d)
		return d, err
	case FlowSearch:
		var d SearchData
		err := json.Unmarshal(raw, &d)
		return d, err
	case FlowPayment:
		var d PaymentData
		err := json.Unmarshal(raw, &d)
		return d, err
	}
	return nil, fmt.Errorf("unknown flow %q", flow)
}

// InitialStep is the step every flow starts at.
const InitialStep = 1

// MaxRecentEvents bounds the replay-protection ring kept on a session.
const MaxRecentEvents = 16

// Session is the singleton per-user record of the active flow.
type Session struct {
	UserID       string    `json:"user_id"`
	Flow         FlowName  `json:"flow"`
	Step         int       `json:"step"`
	Data         FlowData  `json:"-"`
	RecentEvents []string  `json:"recent_events,omitempty"`
	StartedAt    time.Time `json:"started_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// Active reports whether the session has a current flow.
func (s *Session) Active() bool { return s != nil && s.Flow != "" }

// SeenEvent reports whether eventID already mutated this session.
func (s *Session) SeenEvent(eventID string) bool {
	return eventID != "" && slices.Contains(s.RecentEvents, eventID)
}

// RememberEvent records eventID, dropping the oldest ids past the bound.
func (s *Session) RememberEvent(eventID string) {
	if eventID == "" {
		return
	}
	s.RecentEvents = append(s.RecentEvents, eventID)
	if n := len(s.RecentEvents); n > MaxRecentEvents {
		s.RecentEvents = slices.Clone(s.RecentEvents[n-MaxRecentEvents:])
	}
}

// Clone returns a deep copy.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	c := *s
	c.RecentEvents = slices.Clone(s.RecentEvents)
	if d, ok := s.Data.(ListingData); ok {
		d.Photos = slices.Clone(d.Photos)
		c.Data = d
	}
	if d, ok := s.Data.(RegistrationData); ok && d.Eligible != nil {
		v := *d.Eligible
		d.Eligible = &v
		c.Data = d
	}
	return &c
}
