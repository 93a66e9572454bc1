package models

import "time"

// Attachment references media sent alongside an inbound message.
type Attachment struct {
	Type string `json:"type"`
	URL  string `json:"url"`
}

// Event is one inbound chat event.
type Event struct {
	ID          string       `json:"event_id"`
	SenderID    string       `json:"sender_id"`
	Text        string       `json:"text,omitempty"`
	Payload     string       `json:"payload,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
	ReceivedAt  time.Time    `json:"received_at"`
}

// Input returns the postback payload when present, else the free text.
func (e *Event) Input() string {
	if e.Payload != "" {
		return e.Payload
	}
	return e.Text
}

// Images returns the image attachments.
func (e *Event) Images() []Attachment {
	var out []Attachment
	for _, a := range e.Attachments {
		if a.Type == "image" && a.URL != "" {
			out = append(out, a)
		}
	}
	return out
}

type QuickReply struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

type Button struct {
	Title   string `json:"title"`
	Payload string `json:"payload"`
}

// Element is one carousel card.
type Element struct {
	Title    string   `json:"title"`
	Subtitle string   `json:"subtitle,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Buttons  []Button `json:"buttons,omitempty"`
}

// Reply is one outbound message: text, optional quick replies, or a carousel.
type Reply struct {
	Text         string       `json:"text,omitempty"`
	QuickReplies []QuickReply `json:"quick_replies,omitempty"`
	Elements     []Element    `json:"elements,omitempty"`
}

// Outbound is a reply addressed to one recipient.
type Outbound struct {
	RecipientID string `json:"recipient_id"`
	Reply       Reply  `json:"message"`
}
