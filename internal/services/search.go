package services

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/AnshRaj112/marketbot-backend/internal/cache"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

// Searcher runs listing queries through the search-result and listing
// caches. Any new listing clears the search-result cache.
type Searcher struct {
	listings store.ListingStore
	logs     store.LogStore
	results  *cache.Cache[models.ListingPage]
	items    *cache.Cache[models.Listing]
	log      *slog.Logger
}

func NewSearcher(listings store.ListingStore, logs store.LogStore, results *cache.Cache[models.ListingPage],
	items *cache.Cache[models.Listing], log *slog.Logger) *Searcher {
	return &Searcher{listings: listings, logs: logs, results: results, items: items, log: log}
}

// BuildFilter infers category and location from keywords. When no keyword
// matches, the whole query becomes a title/description substring match.
func BuildFilter(query string, page int) models.ListingFilter {
	category, location, rest := inferFilters(query)
	f := models.ListingFilter{
		Category: category,
		Location: location,
		Text:     rest,
		Limit:    MaxCarouselElements,
		Offset:   page * MaxCarouselElements,
	}
	if category == "" && location == "" {
		f.Text = strings.Join(strings.Fields(query), " ")
	}
	return f
}

// Search returns one page of results. A keyword search with no hits on the
// first page falls back to a plain substring match on the raw query.
func (s *Searcher) Search(ctx context.Context, query string, page int) (models.ListingPage, models.ListingFilter, error) {
	f := BuildFilter(query, page)
	res, err := s.query(ctx, f)
	if err != nil {
		return models.ListingPage{}, f, err
	}
	if len(res.Listings) == 0 && page == 0 && (f.Category != "" || f.Location != "") {
		fallback := models.ListingFilter{Text: strings.Join(strings.Fields(query), " "), Limit: f.Limit}
		if res, err = s.query(ctx, fallback); err != nil {
			return models.ListingPage{}, fallback, err
		}
		f = fallback
	}
	return res, f, nil
}

func (s *Searcher) query(ctx context.Context, f models.ListingFilter) (models.ListingPage, error) {
	key := fmt.Sprintf("%s|%s|%s|%d|%d", f.Category, f.Location, Fold(f.Text), f.Limit, f.Offset)
	return s.results.GetOrLoad(key, func() (models.ListingPage, error) {
		return s.listings.QueryListings(ctx, f)
	})
}

// Listing reads one listing through the listing cache.
func (s *Searcher) Listing(ctx context.Context, id string) (*models.Listing, error) {
	l, err := s.items.GetOrLoad(id, func() (models.Listing, error) {
		l, err := s.listings.GetListing(ctx, id)
		if err != nil {
			return models.Listing{}, err
		}
		return *l, nil
	})
	if err != nil {
		return nil, err
	}
	return &l, nil
}

// ListingCreated invalidates cached search pages and primes the listing cache.
func (s *Searcher) ListingCreated(l models.Listing) {
	s.results.Clear()
	s.items.Set(l.ID, l)
}

// LogSearch records an executed search. Failures are logged, not returned.
func (s *Searcher) LogSearch(ctx context.Context, userID, query string, f models.ListingFilter, results int) {
	entry := models.SearchLog{
		UserID:   userID,
		Query:    query,
		Category: f.Category,
		Location: f.Location,
		Results:  results,
	}
	if err := s.logs.LogSearch(ctx, entry); err != nil {
		s.log.Error("log search failed", "user_id", userID, "error", err)
	}
}

// LastQuery returns the user's most recent logged query, or "" if none.
func (s *Searcher) LastQuery(ctx context.Context, userID string) (string, error) {
	recent, err := s.logs.RecentSearches(ctx, userID, 1)
	if err != nil || len(recent) == 0 {
		return "", err
	}
	return recent[0].Query, nil
}

// ResultsReply renders a results page as a carousel with a "more" postback.
func ResultsReply(query string, page int, res models.ListingPage) models.Reply {
	if len(res.Listings) == 0 {
		if page > 0 {
			return textReply("No more results for \"%s\".", query)
		}
		return textReply("No listings found for \"%s\". Try different keywords.", query)
	}
	r := models.Reply{
		Text:     fmt.Sprintf("Results for \"%s\" (page %d):", query, page+1),
		Elements: listingCards(res.Listings),
	}
	if res.HasMore {
		r.QuickReplies = []models.QuickReply{{Title: "More results", Payload: searchPagePayload(page+1, query)}}
	}
	return r
}

func listingDetailReply(l *models.Listing) models.Reply {
	return models.Reply{
		Text:     fmt.Sprintf("%s\n%s · %s\n\n%s", l.Title, formatPrice(l.Price), l.Location, l.Description),
		Elements: listingCards([]models.Listing{*l}),
	}
}
