package services

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

const maxQueryLength = 100

// SearchFlow has a single free-text step; the session is deleted as soon as
// the first page of results is returned.
type SearchFlow struct {
	stepTable
	quota  *QuotaEngine
	search *Searcher
}

func NewSearchFlow(quota *QuotaEngine, search *Searcher) *SearchFlow {
	f := &SearchFlow{quota: quota, search: search}
	f.stepTable = stepTable{1: f.query}
	return f
}

func (f *SearchFlow) Name() models.FlowName         { return models.FlowSearch }
func (f *SearchFlow) Capability() models.Capability { return models.CapSearch }

func (f *SearchFlow) Precheck(ctx context.Context, uc *models.UserContext) error {
	return f.quota.RequireQuota(ctx, uc.Role, models.ActionSearch, uc.UserID)
}

func (f *SearchFlow) Prompt(step int, s *models.Session) models.Reply {
	return models.Reply{Text: "🔎 What are you looking for? (e.g. \"xe may ha noi\" or \"iphone 13\")"}
}

func (f *SearchFlow) query(_ context.Context, in StepInput) (StepResult, error) {
	q := strings.Join(strings.Fields(in.Text), " ")
	if q == "" || utf8.RuneCountInString(q) > maxQueryLength {
		return StepResult{}, invalid("query", "Please type what you are looking for.")
	}
	category, location, _ := inferFilters(q)
	return complete(models.SearchData{Query: q, Category: category, Location: location})
}

// Complete runs the query and returns page one. The search is charged only
// once the query succeeded, so a failed attempt can be retried for free;
// results are withheld if the charge itself fails.
func (f *SearchFlow) Complete(ctx context.Context, uc *models.UserContext, s *models.Session) (models.Reply, error) {
	data, _ := s.Data.(models.SearchData)

	if err := f.quota.RequireQuota(ctx, uc.Role, models.ActionSearch, uc.UserID); err != nil {
		return models.Reply{}, err
	}
	res, filter, err := f.search.Search(ctx, data.Query, 0)
	if err != nil {
		return models.Reply{}, err
	}
	if err := f.quota.RecordActivity(ctx, uc.Role, models.ActionSearch, uc.UserID); err != nil {
		return models.Reply{}, err
	}
	f.search.LogSearch(ctx, uc.UserID, data.Query, filter, len(res.Listings))
	return ResultsReply(data.Query, 0, res), nil
}
