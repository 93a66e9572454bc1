package services

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

const (
	// MaxQuickReplies is the delivery platform's cap per message.
	MaxQuickReplies = 13
	// MaxCarouselElements is the cap on result cards per message.
	MaxCarouselElements = 10

	optionsPayloadPrefix    = "OPTS:"
	searchPagePayloadPrefix = "SEARCH_PAGE:"
	viewPayloadPrefix       = "VIEW_"
)

func textReply(format string, args ...any) models.Reply {
	return models.Reply{Text: fmt.Sprintf(format, args...)}
}

// PaginateOptions renders one page of a quick-reply list. Lists that fit in
// a single message are returned as is; longer lists reserve two slots for
// "Back"/"More" navigation postbacks of the form OPTS:<set>:<page>.
func PaginateOptions(text, set string, opts []models.QuickReply, page int) models.Reply {
	if len(opts) <= MaxQuickReplies {
		return models.Reply{Text: text, QuickReplies: opts}
	}

	perPage := MaxQuickReplies - 2
	pages := (len(opts) + perPage - 1) / perPage
	page = min(max(page, 0), pages-1)

	start := page * perPage
	end := min(start+perPage, len(opts))
	qr := make([]models.QuickReply, 0, MaxQuickReplies)
	if page > 0 {
		qr = append(qr, models.QuickReply{Title: "« Back", Payload: optionsPayload(set, page-1)})
	}
	qr = append(qr, opts[start:end]...)
	if page < pages-1 {
		qr = append(qr, models.QuickReply{Title: "More »", Payload: optionsPayload(set, page+1)})
	}
	return models.Reply{Text: text, QuickReplies: qr}
}

func optionsPayload(set string, page int) string {
	return optionsPayloadPrefix + set + ":" + strconv.Itoa(page)
}

// parseOptionsPayload splits OPTS:<set>:<page>.
func parseOptionsPayload(payload string) (set string, page int, ok bool) {
	rest, found := strings.CutPrefix(payload, optionsPayloadPrefix)
	if !found {
		return "", 0, false
	}
	set, p, found := strings.Cut(rest, ":")
	if !found {
		return "", 0, false
	}
	page, err := strconv.Atoi(p)
	if err != nil || page < 0 {
		return "", 0, false
	}
	return set, page, true
}

func searchPagePayload(page int, query string) string {
	return searchPagePayloadPrefix + strconv.Itoa(page) + ":" + query
}

// parseSearchPagePayload splits SEARCH_PAGE:<page>:<query>. The query may
// itself contain colons.
func parseSearchPagePayload(payload string) (page int, query string, ok bool) {
	rest, found := strings.CutPrefix(payload, searchPagePayloadPrefix)
	if !found {
		return 0, "", false
	}
	p, query, found := strings.Cut(rest, ":")
	if !found {
		return 0, "", false
	}
	page, err := strconv.Atoi(p)
	if err != nil || page < 0 {
		return 0, "", false
	}
	return page, query, true
}

// listingCards renders listings as carousel elements.
func listingCards(listings []models.Listing) []models.Element {
	n := min(len(listings), MaxCarouselElements)
	out := make([]models.Element, 0, n)
	for _, l := range listings[:n] {
		el := models.Element{
			Title:    l.Title,
			Subtitle: fmt.Sprintf("%s · %s", formatPrice(l.Price), l.Location),
			Buttons:  []models.Button{{Title: "View", Payload: viewPayloadPrefix + l.ID}},
		}
		if len(l.Photos) > 0 {
			el.ImageURL = l.Photos[0]
		}
		out = append(out, el)
	}
	return out
}

// formatPrice renders 1250000 as "1.250.000đ".
func formatPrice(v int64) string {
	s := strconv.FormatInt(v, 10)
	var b strings.Builder
	for i, r := range s {
		if i > 0 && (len(s)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(r)
	}
	return b.String() + "đ"
}

func menuReply(uc *models.UserContext) models.Reply {
	var qr []models.QuickReply
	switch uc.Role {
	case models.RoleNew:
		qr = append(qr, models.QuickReply{Title: "Register", Payload: "register"})
	case models.RolePending, models.RoleExpired:
		qr = append(qr, models.QuickReply{Title: "Upgrade", Payload: "pay"})
	}
	qr = append(qr, models.QuickReply{Title: "Search", Payload: "search"})
	if uc.Permissions.Has(models.CapCreateListing) {
		qr = append(qr, models.QuickReply{Title: "Sell", Payload: "sell"})
	}
	if uc.Role == models.RoleTrial {
		qr = append(qr, models.QuickReply{Title: "Upgrade", Payload: "pay"})
	}
	qr = append(qr, models.QuickReply{Title: "Talk to admin", Payload: "admin"})
	return models.Reply{Text: "What would you like to do?", QuickReplies: qr}
}
