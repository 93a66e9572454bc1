package services

import (
	"context"
	"fmt"

	"github.com/AnshRaj112/marketbot-backend/internal/models"
)

// StepInput is what a step handler sees: the inbound event, the classified
// user and a snapshot of the session taken before the step runs.
type StepInput struct {
	Event   *models.Event
	Text    string
	User    *models.UserContext
	Session *models.Session
}

// Outcome tells the dispatcher what to do with the session after a step.
type Outcome int

const (
	// Advance merges the patch and moves to the next step.
	Advance Outcome = iota
	// Stay merges the patch without moving.
	Stay
	// Complete runs the flow's terminal effect and deletes the session.
	Complete
	// Abort deletes the session with no effect.
	Abort
)

type StepResult struct {
	Outcome Outcome
	Patch   models.FlowData
	// Reply overrides the default reply for the outcome.
	Reply *models.Reply
}

// StepFunc validates one step's input. A *ValidationError re-prompts the
// same step.
type StepFunc func(ctx context.Context, in StepInput) (StepResult, error)

// FlowHandler is one fixed business flow. Handlers are stateless and shared
// across events.
type FlowHandler interface {
	Name() models.FlowName
	// Capability is required to start the flow.
	Capability() models.Capability
	// Precheck runs before the flow starts, after the capability check.
	Precheck(ctx context.Context, uc *models.UserContext) error
	// Prompt renders the question asked at step.
	Prompt(step int, s *models.Session) models.Reply
	Step(step int) (StepFunc, bool)
	// Complete is the terminal effect. It returns the final reply.
	Complete(ctx context.Context, uc *models.UserContext, s *models.Session) (models.Reply, error)
}

// stepTable is the step-number → handler dispatch shared by all flows.
type stepTable map[int]StepFunc

func (t stepTable) Step(step int) (StepFunc, bool) {
	fn, ok := t[step]
	return fn, ok
}

func advance(patch models.FlowData) (StepResult, error) {
	return StepResult{Outcome: Advance, Patch: patch}, nil
}

func complete(patch models.FlowData) (StepResult, error) {
	return StepResult{Outcome: Complete, Patch: patch}, nil
}

func abort(reply models.Reply) (StepResult, error) {
	return StepResult{Outcome: Abort, Reply: &reply}, nil
}

// FlowRegistry maps flow names and start commands to handlers.
type FlowRegistry struct {
	flows    map[models.FlowName]FlowHandler
	commands map[string]models.FlowName
}

func NewFlowRegistry() *FlowRegistry {
	return &FlowRegistry{
		flows:    make(map[models.FlowName]FlowHandler),
		commands: make(map[string]models.FlowName),
	}
}

// Register adds h and the folded commands that start it.
func (r *FlowRegistry) Register(h FlowHandler, commands ...string) {
	if _, dup := r.flows[h.Name()]; dup {
		panic(fmt.Sprintf("flow %s registered twice", h.Name()))
	}
	r.flows[h.Name()] = h
	for _, c := range commands {
		r.commands[Fold(c)] = h.Name()
	}
}

func (r *FlowRegistry) Get(name models.FlowName) (FlowHandler, bool) {
	h, ok := r.flows[name]
	return h, ok
}

// ForCommand returns the flow started by input, if any.
func (r *FlowRegistry) ForCommand(input string) (FlowHandler, bool) {
	name, ok := r.commands[Fold(input)]
	if !ok {
		return nil, false
	}
	return r.Get(name)
}

// yesNo parses confirmation answers in English and Vietnamese.
func yesNo(input string) (answer, ok bool) {
	switch Fold(input) {
	case "yes", "y", "co", "dong y", "ok", "confirm", "yes_confirm":
		return true, true
	case "no", "n", "khong", "ko", "no_confirm":
		return false, true
	}
	return false, false
}

var yesNoReplies = []models.QuickReply{
	{Title: "Yes", Payload: "YES_CONFIRM"},
	{Title: "No", Payload: "NO_CONFIRM"},
}

// NewDefaultFlowRegistry wires the four business flows to their start
// commands. Commands are matched after Fold, so Vietnamese input works with
// or without diacritics.
func NewDefaultFlowRegistry(reg *RegistrationFlow, listing *ListingFlow, search *SearchFlow, payment *PaymentFlow) *FlowRegistry {
	r := NewFlowRegistry()
	r.Register(reg, "register", "dang ky", "sign up")
	r.Register(listing, "sell", "create listing", "dang tin")
	r.Register(search, "search", "tim kiem", "find")
	r.Register(payment, "pay", "upgrade", "nang cap")
	return r
}
