package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/AnshRaj112/marketbot-backend/internal/clock"
	"github.com/AnshRaj112/marketbot-backend/internal/models"
	"github.com/AnshRaj112/marketbot-backend/internal/store"
)

const contactPayloadPrefix = "CONTACT_"

var (
	cancelCommands = map[string]bool{"cancel": true, "huy": true, "stop": true, "exit": true}
	adminCommands  = []string{"admin", "support", "ho tro"}
)

type DispatcherDeps struct {
	Classifier *Classifier
	Perms      *PermissionTable
	Quota      *QuotaEngine
	Sessions   *SessionManager
	Flows      *FlowRegistry
	Search     *Searcher
	Logs       store.LogStore
	// Dedup may be nil, in which case only the session's recent-event ring
	// protects against redelivery.
	Dedup Deduper
	Clock clock.Clock
	Log   *slog.Logger
}

// Dispatcher turns one inbound event into the outbound messages it causes.
// Events are independent; per-user ordering is enforced by SessionManager.
type Dispatcher struct {
	DispatcherDeps
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	if deps.Clock == nil {
		deps.Clock = clock.Real()
	}
	return &Dispatcher{DispatcherDeps: deps}
}

// Handle processes ev. It never returns an error: every failure is turned
// into a reply for the sender, or nothing for dropped duplicates.
func (d *Dispatcher) Handle(ctx context.Context, ev *models.Event) []models.Outbound {
	if ev.SenderID == "" {
		return nil
	}
	if ev.ReceivedAt.IsZero() {
		ev.ReceivedAt = d.Clock.Now()
	}
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	} else if d.Dedup != nil {
		first, err := d.Dedup.FirstSeen(ctx, ev.ID)
		if err != nil {
			d.Log.Warn("event dedup unavailable", "event_id", ev.ID, "error", err)
		} else if !first {
			d.Log.Debug("dropping redelivered event", "event_id", ev.ID, "user_id", ev.SenderID)
			return nil
		}
	}

	uc := d.Classifier.Classify(ctx, ev.SenderID)
	log := d.Log.With("user_id", uc.UserID, "event_id", ev.ID, "role", uc.Role)
	to := func(r models.Reply) []models.Outbound {
		return []models.Outbound{{RecipientID: uc.UserID, Reply: r}}
	}

	if err := d.Perms.Require(uc.Role, models.CapUseBot); err != nil {
		return to(ReplyForError(err))
	}
	if err := d.Quota.RecordActivity(ctx, uc.Role, models.ActionMessage, uc.UserID); err != nil {
		d.logError(log, "record message", err)
		return to(ReplyForError(err))
	}
	d.checkAbuse(ctx, log, uc.UserID)

	input := strings.TrimSpace(ev.Input())
	folded := Fold(input)

	if cancelCommands[folded] {
		if err := d.Sessions.CancelFlow(ctx, uc.UserID); err != nil {
			d.logError(log, "cancel flow", err)
			return to(ReplyForError(err))
		}
		uc.State, uc.Flow = models.StateIdle, ""
		r := menuReply(uc)
		r.Text = "Cancelled. " + r.Text
		return to(r)
	}
	if set, page, ok := parseOptionsPayload(input); ok {
		return to(d.optionsPage(uc, set, page))
	}
	if h, ok := d.Flows.ForCommand(input); ok {
		return to(d.startFlow(ctx, log, uc, h, ev.ID))
	}
	if msg, ok := adminRequest(input); ok {
		return d.adminChat(ctx, log, uc, msg)
	}
	if id, ok := strings.CutPrefix(input, viewPayloadPrefix); ok {
		return to(d.viewListing(ctx, log, uc, id))
	}
	if id, ok := strings.CutPrefix(input, contactPayloadPrefix); ok {
		return to(d.contactSeller(ctx, log, uc, id))
	}
	if page, query, ok := parseSearchPagePayload(input); ok {
		return to(d.searchPage(ctx, log, uc, page, query))
	}
	if uc.InFlow() {
		return d.continueFlow(ctx, log, uc, ev, input)
	}
	return to(menuReply(uc))
}

func (d *Dispatcher) startFlow(ctx context.Context, log *slog.Logger, uc *models.UserContext, h FlowHandler, eventID string) models.Reply {
	// A degraded context may hide a real profile or an active session;
	// starting a flow on it could overwrite either.
	if uc.Degraded {
		return ReplyForError(store.ErrTransient)
	}
	if err := d.Perms.Require(uc.Role, h.Capability()); err != nil {
		return ReplyForError(err)
	}
	if err := h.Precheck(ctx, uc); err != nil {
		d.logError(log, "precheck "+string(h.Name()), err)
		return ReplyForError(err)
	}
	s, err := d.Sessions.StartFlow(ctx, uc.UserID, h.Name(), eventID)
	if err != nil && !errors.Is(err, ErrDuplicateEvent) {
		d.logError(log, "start flow", err)
		return ReplyForError(err)
	}
	log.Info("flow started", "flow", h.Name())
	return h.Prompt(s.Step, s)
}

func (d *Dispatcher) continueFlow(ctx context.Context, log *slog.Logger, uc *models.UserContext, ev *models.Event, input string) []models.Outbound {
	to := func(rs ...models.Reply) []models.Outbound {
		out := make([]models.Outbound, len(rs))
		for i, r := range rs {
			out[i] = models.Outbound{RecipientID: uc.UserID, Reply: r}
		}
		return out
	}

	s, err := d.Sessions.Get(ctx, uc.UserID)
	if err != nil {
		d.logError(log, "load session", err)
		return to(ReplyForError(err))
	}
	if s == nil {
		return to(menuReply(uc))
	}
	if s.SeenEvent(ev.ID) {
		return nil
	}

	h, ok := d.Flows.Get(s.Flow)
	var fn StepFunc
	if ok {
		fn, ok = h.Step(s.Step)
	}
	if !ok {
		log.Error("session points at unknown flow step, resetting", "flow", s.Flow, "step", s.Step)
		if err := d.Sessions.CancelFlow(ctx, uc.UserID); err != nil {
			d.logError(log, "reset session", err)
		}
		return to(menuReply(uc))
	}

	res, err := fn(ctx, StepInput{Event: ev, Text: input, User: uc, Session: s})
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			return to(ReplyForError(err), h.Prompt(s.Step, s))
		}
		d.logError(log, "step "+string(s.Flow), err)
		return to(ReplyForError(err))
	}

	switch res.Outcome {
	case Advance, Stay:
		var next *models.Session
		if res.Outcome == Advance {
			next, err = d.Sessions.AdvanceStep(ctx, uc.UserID, ev.ID, s.Step, res.Patch)
		} else {
			next, err = d.Sessions.UpdateData(ctx, uc.UserID, ev.ID, s.Step, res.Patch)
		}
		if dropped, out := d.sessionError(log, uc, err); dropped {
			return out
		}
		if res.Reply != nil {
			return to(*res.Reply)
		}
		return to(h.Prompt(next.Step, next))

	case Complete:
		var final models.Reply
		err := d.Sessions.CompleteFlow(ctx, uc.UserID, ev.ID, s.Step, res.Patch, func(ctx context.Context, fs *models.Session) error {
			r, err := h.Complete(ctx, uc, fs)
			final = r
			return err
		})
		if dropped, out := d.sessionError(log, uc, err); dropped {
			return out
		}
		log.Info("flow completed", "flow", s.Flow)
		return to(final)

	case Abort:
		if err := d.Sessions.CancelFlow(ctx, uc.UserID); err != nil {
			d.logError(log, "abort flow", err)
			return to(ReplyForError(err))
		}
		if res.Reply != nil {
			return to(*res.Reply)
		}
		return to(menuReply(uc))
	}
	return nil
}

// sessionError classifies a SessionManager error. Lost races and replays
// are dropped silently; everything else becomes an error reply.
func (d *Dispatcher) sessionError(log *slog.Logger, uc *models.UserContext, err error) (bool, []models.Outbound) {
	switch {
	case err == nil:
		return false, nil
	case errors.Is(err, ErrDuplicateEvent), errors.Is(err, ErrStaleStep):
		log.Debug("session mutation skipped", "reason", err)
		return true, nil
	case errors.Is(err, ErrNoSession):
		return true, []models.Outbound{{RecipientID: uc.UserID, Reply: menuReply(uc)}}
	}
	d.logError(log, "session mutation", err)
	return true, []models.Outbound{{RecipientID: uc.UserID, Reply: ReplyForError(err)}}
}

func (d *Dispatcher) optionsPage(uc *models.UserContext, set string, page int) models.Reply {
	entries, ok := optionSets[set]
	if !ok {
		return menuReply(uc)
	}
	return PaginateOptions("Choose an option:", set, optionsFor(entries), page)
}

// adminRequest matches "admin" or "admin <message>".
func adminRequest(input string) (string, bool) {
	folded := Fold(input)
	for _, c := range adminCommands {
		if folded == c {
			return "", true
		}
		if strings.HasPrefix(folded, c+" ") {
			words := strings.Fields(input)
			return strings.Join(words[len(strings.Fields(c)):], " "), true
		}
	}
	return "", false
}

// adminChat consumes the admin-chat quota and forwards the request to every
// allow-listed admin.
func (d *Dispatcher) adminChat(ctx context.Context, log *slog.Logger, uc *models.UserContext, msg string) []models.Outbound {
	to := func(r models.Reply) []models.Outbound {
		return []models.Outbound{{RecipientID: uc.UserID, Reply: r}}
	}
	if err := d.Perms.Require(uc.Role, models.CapAdminChat); err != nil {
		return to(ReplyForError(err))
	}
	admins := d.Classifier.AdminIDs()
	if len(admins) == 0 {
		return to(models.Reply{Text: "No admin is available right now. Please try again later."})
	}
	if err := d.Quota.RecordActivity(ctx, uc.Role, models.ActionAdminChat, uc.UserID); err != nil {
		d.logError(log, "record admin chat", err)
		return to(ReplyForError(err))
	}

	who := uc.UserID
	if uc.Profile != nil && uc.Profile.Name != "" {
		who = fmt.Sprintf("%s (%s)", uc.Profile.Name, uc.UserID)
	}
	text := fmt.Sprintf("📩 %s [%s] asks for an admin.", who, uc.Role)
	if msg != "" {
		text += "\n\n" + msg
	}

	out := to(models.Reply{Text: "✅ Your request was sent. An admin will contact you shortly."})
	for _, id := range admins {
		if id == uc.UserID {
			continue
		}
		out = append(out, models.Outbound{RecipientID: id, Reply: models.Reply{Text: text}})
	}
	log.Info("admin chat requested", "admins", len(admins))
	return out
}

func (d *Dispatcher) viewListing(ctx context.Context, log *slog.Logger, uc *models.UserContext, id string) models.Reply {
	if err := d.Perms.Require(uc.Role, models.CapViewListings); err != nil {
		return ReplyForError(err)
	}
	l, err := d.Search.Listing(ctx, id)
	if err != nil {
		d.logError(log, "view listing", err)
		return ReplyForError(err)
	}
	r := listingDetailReply(l)
	if uc.Permissions.Has(models.CapContactSeller) {
		r.QuickReplies = []models.QuickReply{{Title: "Contact seller", Payload: contactPayloadPrefix + l.ID}}
	}
	return r
}

func (d *Dispatcher) contactSeller(ctx context.Context, log *slog.Logger, uc *models.UserContext, id string) models.Reply {
	if err := d.Perms.Require(uc.Role, models.CapContactSeller); err != nil {
		return ReplyForError(err)
	}
	l, err := d.Search.Listing(ctx, id)
	if err != nil {
		d.logError(log, "contact seller", err)
		return ReplyForError(err)
	}
	seller, err := d.Classifier.Profile(ctx, l.SellerID)
	if err != nil {
		d.logError(log, "contact seller", err)
		return ReplyForError(err)
	}
	return textReply("Seller for \"%s\": %s, phone %s.", l.Title, seller.Name, seller.Phone)
}

// searchPage serves further pages of the user's latest search without
// charging. Any other query counts as a new search against the daily quota.
func (d *Dispatcher) searchPage(ctx context.Context, log *slog.Logger, uc *models.UserContext, page int, query string) models.Reply {
	if err := d.Perms.Require(uc.Role, models.CapSearch); err != nil {
		return ReplyForError(err)
	}

	followUp := false
	if page > 0 {
		last, err := d.Search.LastQuery(ctx, uc.UserID)
		if err != nil {
			log.Warn("recent searches unavailable, charging as a new search", "error", err)
		}
		followUp = err == nil && last != "" && last == query
	}
	if !followUp {
		if err := d.Quota.RequireQuota(ctx, uc.Role, models.ActionSearch, uc.UserID); err != nil {
			d.logError(log, "search page", err)
			return ReplyForError(err)
		}
	}

	res, filter, err := d.Search.Search(ctx, query, page)
	if err != nil {
		d.logError(log, "search page", err)
		return ReplyForError(err)
	}
	if !followUp {
		if err := d.Quota.RecordActivity(ctx, uc.Role, models.ActionSearch, uc.UserID); err != nil {
			d.logError(log, "record search", err)
			return ReplyForError(err)
		}
		d.Search.LogSearch(ctx, uc.UserID, query, filter, len(res.Listings))
	}
	return ResultsReply(query, page, res)
}

// checkAbuse is advisory: detections are logged and flagged, never enforced.
func (d *Dispatcher) checkAbuse(ctx context.Context, log *slog.Logger, userID string) {
	report, err := d.Quota.DetectAbuse(ctx, userID)
	if err != nil {
		log.Warn("abuse detection skipped", "error", err)
		return
	}
	if !report.IsAbuse {
		return
	}
	log.Warn(ErrAbuseDetected.Error(), "reason", report.Reason)
	now := d.Clock.Now()
	flag := models.AbuseFlag{
		UserID:    userID,
		Kind:      models.AbuseVolume,
		Reason:    report.Reason,
		Day:       d.Quota.Day(now),
		CreatedAt: now,
	}
	if err := d.Logs.RecordAbuse(ctx, flag); err != nil {
		log.Error("record abuse flag failed", "error", err)
	}
}

// logError logs unexpected failures. Validation, permission and quota
// outcomes are normal control flow and are logged at debug.
func (d *Dispatcher) logError(log *slog.Logger, op string, err error) {
	var (
		verr *ValidationError
		qerr *QuotaExceededError
	)
	switch {
	case errors.As(err, &verr), errors.As(err, &qerr), errors.Is(err, ErrPermissionDenied), errors.Is(err, store.ErrNotFound):
		log.Debug(op, "outcome", err)
	default:
		log.Error(op+" failed", "error", err)
	}
}
