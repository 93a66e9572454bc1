package services

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

const (
	minTitleLength       = 5
	maxTitleLength       = 120
	minDescriptionLength = 20
	maxDescriptionLength = 2000
	// MinPrice is the price floor in đồng.
	MinPrice int64 = 1000
	// MaxListingPhotos bounds photos per listing.
	MaxListingPhotos = 5
)

// ListingFlow: title → category → price → description → location. Photos
// sent at any step are re-hosted and attached without advancing.
type ListingFlow struct {
	stepTable
	listings store.ListingStore
	logs     store.LogStore
	quota    *QuotaEngine
	search   *Searcher
	uploader Uploader
	clock    clock.Clock
	log      *slog.Logger
}

func NewListingFlow(listings store.ListingStore, logs store.LogStore, quota *QuotaEngine, search *Searcher,
	uploader Uploader, clk clock.Clock, log *slog.Logger) *ListingFlow {
	if clk == nil {
		clk = clock.Real()
	}
	f := &ListingFlow{listings: listings, logs: logs, quota: quota, search: search, uploader: uploader, clock: clk, log: log}
	f.stepTable = stepTable{
		1: f.title,
		2: f.category,
		3: f.price,
		4: f.description,
		5: f.location,
	}
	return f
}

func (f *ListingFlow) Name() models.FlowName         { return models.FlowListing }
func (f *ListingFlow) Capability() models.Capability { return models.CapCreateListing }

func (f *ListingFlow) Precheck(ctx context.Context, uc *models.UserContext) error {
	return f.quota.RequireQuota(ctx, uc.Role, models.ActionListing, uc.UserID)
}

// Step wraps every step with photo handling.
func (f *ListingFlow) Step(step int) (StepFunc, bool) {
	fn, ok := f.stepTable.Step(step)
	if !ok {
		return nil, false
	}
	return func(ctx context.Context, in StepInput) (StepResult, error) {
		if images := in.Event.Images(); len(images) > 0 {
			return f.photos(ctx, in, images)
		}
		return fn(ctx, in)
	}, true
}

func (f *ListingFlow) Prompt(step int, s *models.Session) models.Reply {
	switch step {
	case 1:
		return models.Reply{Text: "What are you selling? Send a short title. You can send up to 5 photos at any time."}
	case 2:
		return PaginateOptions("Pick a category:", OptionCategories, optionsFor(categoryCatalog), 0)
	case 3:
		return models.Reply{Text: "What is the price? (e.g. 1.500.000, 1500k or 1.5tr)"}
	case 4:
		return models.Reply{Text: fmt.Sprintf("Describe the item (at least %d characters).", minDescriptionLength)}
	case 5:
		return PaginateOptions("Where can buyers pick it up?", OptionLocations, optionsFor(locationCatalog), 0)
	}
	return models.Reply{}
}

func (f *ListingFlow) photos(ctx context.Context, in StepInput, images []models.Attachment) (StepResult, error) {
	have := 0
	if d, ok := in.Session.Data.(models.ListingData); ok {
		have = len(d.Photos)
	}
	room := MaxListingPhotos - have
	if room <= 0 {
		return StepResult{}, invalid("photos", fmt.Sprintf("A listing can have at most %d photos.", MaxListingPhotos))
	}
	if f.uploader == nil {
		return StepResult{}, invalid("photos", "Photo uploads are not available right now.")
	}

	var urls []string
	for _, img := range images[:min(len(images), room)] {
		url, err := f.uploader.Upload(ctx, img.URL, in.User.UserID)
		if err != nil {
			return StepResult{}, fmt.Errorf("upload photo: %w", err)
		}
		urls = append(urls, url)
	}
	reply := textReply("📷 Added %d photo(s) (%d/%d).", len(urls), have+len(urls), MaxListingPhotos)
	return StepResult{Outcome: Stay, Patch: models.ListingData{Photos: urls}, Reply: &reply}, nil
}

func (f *ListingFlow) title(ctx context.Context, in StepInput) (StepResult, error) {
	title := strings.Join(strings.Fields(in.Text), " ")
	if n := utf8.RuneCountInString(title); n < minTitleLength || n > maxTitleLength {
		return StepResult{}, invalid("title", fmt.Sprintf("The title must be %d to %d characters.", minTitleLength, maxTitleLength))
	}
	if err := f.moderate(ctx, in.User.UserID, "title", title); err != nil {
		return StepResult{}, err
	}
	return advance(models.ListingData{Title: title})
}

func (f *ListingFlow) category(_ context.Context, in StepInput) (StepResult, error) {
	e, ok := matchEntry(categoryCatalog, in.Text)
	if !ok {
		return StepResult{}, invalid("category", "Please choose one of the listed categories.")
	}
	return advance(models.ListingData{Category: e.Code})
}

func (f *ListingFlow) price(_ context.Context, in StepInput) (StepResult, error) {
	p, err := ParsePrice(in.Text)
	if err != nil || p < MinPrice {
		return StepResult{}, invalid("price", fmt.Sprintf("Please enter a price of at least %s.", formatPrice(MinPrice)))
	}
	return advance(models.ListingData{Price: p})
}

func (f *ListingFlow) description(ctx context.Context, in StepInput) (StepResult, error) {
	desc := strings.TrimSpace(in.Text)
	if n := utf8.RuneCountInString(desc); n < minDescriptionLength || n > maxDescriptionLength {
		return StepResult{}, invalid("description", fmt.Sprintf("The description must be %d to %d characters.", minDescriptionLength, maxDescriptionLength))
	}
	if err := f.moderate(ctx, in.User.UserID, "description", desc); err != nil {
		return StepResult{}, err
	}
	return advance(models.ListingData{Description: desc})
}

func (f *ListingFlow) location(_ context.Context, in StepInput) (StepResult, error) {
	e, ok := matchEntry(locationCatalog, in.Text)
	if !ok {
		return StepResult{}, invalid("location", "Please choose one of the listed cities.")
	}
	return complete(models.ListingData{Location: e.Code})
}

// moderate rejects prohibited content and files an abuse flag for review.
func (f *ListingFlow) moderate(ctx context.Context, userID, field, text string) error {
	hits := ProhibitedTerms(text)
	if len(hits) == 0 {
		return nil
	}
	f.log.Warn("prohibited listing content", "user_id", userID, "field", field, "terms", hits)
	flag := models.AbuseFlag{
		UserID:    userID,
		Kind:      models.AbuseContent,
		Reason:    fmt.Sprintf("%s contains %s", field, strings.Join(hits, ", ")),
		Day:       f.quota.Day(f.clock.Now()),
		CreatedAt: f.clock.Now(),
	}
	if err := f.logs.RecordAbuse(ctx, flag); err != nil {
		f.log.Error("record abuse flag failed", "user_id", userID, "error", err)
	}
	return invalid(field, "This item cannot be listed on our marketplace.")
}

// Complete inserts the listing and then charges it to today's quota. It runs
// under the user's session lock, so the check before the insert cannot be
// raced by another completion and a failed insert costs nothing.
func (f *ListingFlow) Complete(ctx context.Context, uc *models.UserContext, s *models.Session) (models.Reply, error) {
	data, ok := s.Data.(models.ListingData)
	if !ok {
		return models.Reply{}, fmt.Errorf("listing: unexpected data %T", s.Data)
	}

	if err := f.quota.RequireQuota(ctx, uc.Role, models.ActionListing, uc.UserID); err != nil {
		return models.Reply{}, err
	}

	l := &models.Listing{
		ID:          uuid.NewString(),
		SellerID:    uc.UserID,
		Title:       data.Title,
		Category:    data.Category,
		Price:       data.Price,
		Description: data.Description,
		Location:    data.Location,
		Photos:      data.Photos,
		CreatedAt:   f.clock.Now(),
	}
	if err := f.listings.InsertListing(ctx, l); err != nil {
		return models.Reply{}, err
	}
	// The listing is live; failing here would make a retry insert it twice.
	if err := f.quota.RecordActivity(ctx, uc.Role, models.ActionListing, uc.UserID); err != nil {
		f.log.Error("listing created but not counted", "user_id", uc.UserID, "listing_id", l.ID, "error", err)
	}
	f.search.ListingCreated(*l)

	return models.Reply{
		Text:     "✅ Your listing is live!",
		Elements: listingCards([]models.Listing{*l}),
	}, nil
}

// ParsePrice accepts "1.500.000", "1,500,000đ", "1500k" and "1.5tr".
func ParsePrice(input string) (int64, error) {
	s := Fold(input)
	s = strings.NewReplacer(" ", "", "vnd", "", "dong", "", "d", "").Replace(s)

	mult := 1.0
	switch {
	case strings.HasSuffix(s, "trieu"):
		s, mult = strings.TrimSuffix(s, "trieu"), 1e6
	case strings.HasSuffix(s, "tr"):
		s, mult = strings.TrimSuffix(s, "tr"), 1e6
	case strings.HasSuffix(s, "k"):
		s, mult = strings.TrimSuffix(s, "k"), 1e3
	}

	if mult == 1 {
		s = strings.NewReplacer(".", "", ",", "").Replace(s)
		v, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse price %q: %w", input, err)
		}
		return v, nil
	}

	v, err := strconv.ParseFloat(strings.ReplaceAll(s, ",", "."), 64)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("parse price %q: invalid amount", input)
	}
	return int64(math.Round(v * mult)), nil
}
