package services

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

const (
	maxNameLength = 100
	// DefaultTrialDays applies when no trial length is configured.
	DefaultTrialDays = 30
)

var phonePattern = regexp.MustCompile(`^0\d{9}$`)

// NormalizePhone strips separators and rewrites the +84 country prefix.
func NormalizePhone(input string) string {
	p := strings.NewReplacer(" ", "", ".", "", "-", "", "(", "", ")", "").Replace(strings.TrimSpace(input))
	if rest, ok := strings.CutPrefix(p, "+84"); ok {
		p = "0" + rest
	}
	return p
}

// RegistrationFlow: full name → phone → location → eligibility. Completion
// starts a trial membership.
type RegistrationFlow struct {
	stepTable
	users      store.UserStore
	classifier *Classifier
	clock      clock.Clock
	trialDays  int
}

func NewRegistrationFlow(users store.UserStore, classifier *Classifier, clk clock.Clock, trialDays int) *RegistrationFlow {
	if trialDays <= 0 {
		trialDays = DefaultTrialDays
	}
	if clk == nil {
		clk = clock.Real()
	}
	f := &RegistrationFlow{users: users, classifier: classifier, clock: clk, trialDays: trialDays}
	f.stepTable = stepTable{
		1: f.name,
		2: f.phone,
		3: f.location,
		4: f.eligibility,
	}
	return f
}

func (f *RegistrationFlow) Name() models.FlowName         { return models.FlowRegistration }
func (f *RegistrationFlow) Capability() models.Capability { return models.CapUseBot }

func (f *RegistrationFlow) Precheck(ctx context.Context, uc *models.UserContext) error {
	switch uc.Role {
	case models.RoleNew, models.RolePending:
		return nil
	}
	return invalid("registration", "You are already registered.")
}

func (f *RegistrationFlow) Prompt(step int, s *models.Session) models.Reply {
	switch step {
	case 1:
		return models.Reply{Text: "Welcome! Let's get you registered. What is your full name?"}
	case 2:
		return models.Reply{Text: "What is your phone number? (10 digits, starting with 0)"}
	case 3:
		return PaginateOptions("Which city are you in?", OptionLocations, optionsFor(locationCatalog), 0)
	case 4:
		return models.Reply{Text: "Please confirm that you are 18 or older.", QuickReplies: yesNoReplies}
	}
	return models.Reply{}
}

func (f *RegistrationFlow) name(_ context.Context, in StepInput) (StepResult, error) {
	name := strings.Join(strings.Fields(in.Text), " ")
	if name == "" {
		return StepResult{}, invalid("name", "Please enter your full name.")
	}
	if utf8.RuneCountInString(name) > maxNameLength {
		return StepResult{}, invalid("name", fmt.Sprintf("Your name must be at most %d characters.", maxNameLength))
	}
	return advance(models.RegistrationData{FullName: name})
}

func (f *RegistrationFlow) phone(_ context.Context, in StepInput) (StepResult, error) {
	p := NormalizePhone(in.Text)
	if !phonePattern.MatchString(p) {
		return StepResult{}, invalid("phone", "That phone number is not valid. Please enter 10 digits starting with 0, e.g. 0901234567.")
	}
	return advance(models.RegistrationData{Phone: p})
}

func (f *RegistrationFlow) location(_ context.Context, in StepInput) (StepResult, error) {
	e, ok := matchEntry(locationCatalog, in.Text)
	if !ok {
		return StepResult{}, invalid("location", "Please choose one of the listed cities.")
	}
	return advance(models.RegistrationData{Location: e.Code})
}

func (f *RegistrationFlow) eligibility(_ context.Context, in StepInput) (StepResult, error) {
	yes, ok := yesNo(in.Text)
	if !ok {
		return StepResult{}, invalid("eligibility", "Please answer yes or no.")
	}
	if !yes {
		return abort(models.Reply{Text: "Sorry, you must be 18 or older to register. Registration has been cancelled."})
	}
	return complete(models.RegistrationData{Eligible: &yes})
}

// Complete writes the profile as a trial member.
func (f *RegistrationFlow) Complete(ctx context.Context, uc *models.UserContext, s *models.Session) (models.Reply, error) {
	data, ok := s.Data.(models.RegistrationData)
	if !ok {
		return models.Reply{}, fmt.Errorf("registration: unexpected data %T", s.Data)
	}

	now := f.clock.Now()
	expires := now.AddDate(0, 0, f.trialDays)
	profile := models.UserProfile{ID: uc.UserID, CreatedAt: now}
	if uc.Profile != nil {
		profile = *uc.Profile
	}
	profile.Name = data.FullName
	profile.Phone = data.Phone
	profile.Location = data.Location
	profile.Status = models.StatusTrial
	profile.MembershipExpiresAt = &expires
	profile.UpdatedAt = now

	if err := f.users.UpsertUser(ctx, &profile); err != nil {
		return models.Reply{}, err
	}
	f.classifier.InvalidateProfile(uc.UserID)

	return models.Reply{
		Text: fmt.Sprintf("Thanks %s, you're registered! Your free trial runs until %s.",
			data.FullName, expires.Format("02/01/2006")),
		QuickReplies: []models.QuickReply{{Title: "Search", Payload: "search"}, {Title: "Sell", Payload: "sell"}},
	}, nil
}
