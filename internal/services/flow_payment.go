package services

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

// PaymentFlow gates the make_payment capability: plan → confirm. Completion
// only records a pending request; an admin confirms it out of band.
type PaymentFlow struct {
	stepTable
	payments store.PaymentStore
	clock    clock.Clock
}

func NewPaymentFlow(payments store.PaymentStore, clk clock.Clock) *PaymentFlow {
	if clk == nil {
		clk = clock.Real()
	}
	f := &PaymentFlow{payments: payments, clock: clk}
	f.stepTable = stepTable{
		1: f.plan,
		2: f.confirm,
	}
	return f
}

func (f *PaymentFlow) Name() models.FlowName         { return models.FlowPayment }
func (f *PaymentFlow) Capability() models.Capability { return models.CapMakePayment }

func (f *PaymentFlow) Precheck(context.Context, *models.UserContext) error { return nil }

func (f *PaymentFlow) Prompt(step int, s *models.Session) models.Reply {
	switch step {
	case 1:
		return PaginateOptions("Choose a membership plan:", OptionPlans, optionsFor(planEntries()), 0)
	case 2:
		d, _ := s.Data.(models.PaymentData)
		return models.Reply{
			Text:         fmt.Sprintf("You chose %d month(s) for %s. Confirm?", d.Months, formatPrice(d.Amount)),
			QuickReplies: yesNoReplies,
		}
	}
	return models.Reply{}
}

func (f *PaymentFlow) plan(_ context.Context, in StepInput) (StepResult, error) {
	e, ok := matchEntry(planEntries(), in.Text)
	if !ok {
		return StepResult{}, invalid("plan", "Please choose one of the listed plans.")
	}
	for _, p := range paymentPlans {
		if p.Code == e.Code {
			return advance(models.PaymentData{Plan: p.Code, Months: p.Months, Amount: p.Amount})
		}
	}
	return StepResult{}, invalid("plan", "Please choose one of the listed plans.")
}

func (f *PaymentFlow) confirm(_ context.Context, in StepInput) (StepResult, error) {
	yes, ok := yesNo(in.Text)
	if !ok {
		return StepResult{}, invalid("confirm", "Please answer yes or no.")
	}
	if !yes {
		return abort(models.Reply{Text: "No problem, the upgrade was cancelled."})
	}
	return complete(nil)
}

func (f *PaymentFlow) Complete(ctx context.Context, uc *models.UserContext, s *models.Session) (models.Reply, error) {
	d, ok := s.Data.(models.PaymentData)
	if !ok {
		return models.Reply{}, fmt.Errorf("payment: unexpected data %T", s.Data)
	}

	pr := &models.PaymentRequest{
		ID:        uuid.NewString(),
		UserID:    uc.UserID,
		Plan:      d.Plan,
		Months:    d.Months,
		Amount:    d.Amount,
		Status:    models.PaymentPending,
		CreatedAt: f.clock.Now(),
	}
	if err := f.payments.InsertPaymentRequest(ctx, pr); err != nil {
		return models.Reply{}, err
	}
	return textReply(
		"Thanks! Please transfer %s with reference %s. Your membership is activated once an admin confirms the payment.",
		formatPrice(pr.Amount), pr.ID[:8]), nil
}
