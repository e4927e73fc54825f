// Package wizard runs the staged collection flows: the order flow that
// renders and dispatches a receipt, and the settings flow that saves the
// user's profile.
package wizard

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/mwrona/receiptor/internal/render"
	"github.com/mwrona/receiptor/internal/schema"
	"github.com/mwrona/receiptor/internal/store"
)

// ErrSessionNotFound is returned when a user submits without a run in
// progress, or when a concurrent submit already completed the run.
var ErrSessionNotFound = errors.New("no session in progress")

// AccessDeniedError is returned when the access gate rejects a new run.
type AccessDeniedError struct {
	Reason string
}

func (e *AccessDeniedError) Error() string { return e.Reason }

// DispatchError wraps a delivery failure at completion. The collected
// values are already consumed; the usage counter is not charged.
type DispatchError struct {
	Err error
}

func (e *DispatchError) Error() string { return fmt.Sprintf("dispatch failed: %v", e.Err) }
func (e *DispatchError) Unwrap() error { return e.Err }

// Dispatcher delivers a rendered receipt document.
type Dispatcher interface {
	Send(ctx context.Context, out *Outbound) error
}

// Outbound is a rendered receipt ready for delivery.
type Outbound struct {
	FromName string
	To       string
	Subject  string
	HTML     string
}

// Gate decides whether a user may start a new order run.
type Gate interface {
	Check(ctx context.Context, userID string) (allowed bool, reason string)
}

// UsageStore charges a completed run against the user's counter.
type UsageStore interface {
	DecrementLimit(ctx context.Context, userID string) int
}

// ProfileStore reads and writes the stored user profile and the
// last-used recipient address.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) *store.Profile
	SetProfile(ctx context.Context, userID string, profile *store.Profile) error
	GetEmail(ctx context.Context, userID string) string
	SetEmail(ctx context.Context, userID, email string) error
}

// Summary describes a completed order run.
type Summary struct {
	Template    string `json:"template"`
	Product     string `json:"product"`
	Size        string `json:"size,omitempty"`
	Email       string `json:"email"`
	Total       string `json:"total"`
	OrderNumber string `json:"order_number"`
	// Remaining is the counter after charging, store.Unlimited when
	// the user has no limit on record.
	Remaining int `json:"remaining"`
}

// StepResult is the outcome of a wizard call: either the next stage with
// its fields, or the completion payload.
type StepResult struct {
	Done    bool           `json:"done"`
	Stage   Stage          `json:"stage,omitempty"`
	Fields  []schema.Field `json:"fields,omitempty"`
	Summary *Summary       `json:"summary,omitempty"`
	Profile *store.Profile `json:"profile,omitempty"`
}

// Wizard orchestrates sessions, validation, rendering and dispatch.
type Wizard struct {
	sessions   SessionStore
	profiles   ProfileStore
	usage      UsageStore
	gate       Gate
	dispatcher Dispatcher
	engine     *render.Engine
	loadDoc    func(name string) (string, error)
	logger     *slog.Logger
	now        func() time.Time
}

// Config collects the wizard dependencies.
type Config struct {
	Sessions   SessionStore
	Profiles   ProfileStore
	Usage      UsageStore
	Gate       Gate
	Dispatcher Dispatcher
	LoadDoc    func(name string) (string, error)
	Logger     *slog.Logger
}

func New(cfg Config) *Wizard {
	return &Wizard{
		sessions:   cfg.Sessions,
		profiles:   cfg.Profiles,
		usage:      cfg.Usage,
		gate:       cfg.Gate,
		dispatcher: cfg.Dispatcher,
		engine:     render.NewEngine(),
		loadDoc:    cfg.LoadDoc,
		logger:     cfg.Logger,
		now:        time.Now,
	}
}

// SelectTemplate starts an order run. Any run already in progress for
// the user is replaced.
func (w *Wizard) SelectTemplate(ctx context.Context, userID, templateID string) (*StepResult, error) {
	sch, err := schema.Lookup(templateID)
	if err != nil {
		return nil, err
	}

	if allowed, reason := w.gate.Check(ctx, userID); !allowed {
		return nil, &AccessDeniedError{Reason: reason}
	}

	w.sessions.Put(&Session{
		UserID:    userID,
		Kind:      KindOrder,
		Template:  sch.ID,
		Stage:     StageOrder1,
		Fields:    make(map[string]string),
		CreatedAt: w.now(),
	})

	w.logger.Info("order run started", "user_id", userID, "template", sch.ID)
	return &StepResult{Stage: StageOrder1, Fields: schema.Stage1Fields()}, nil
}

// StartSettings starts a settings run, replacing any run in progress.
func (w *Wizard) StartSettings(ctx context.Context, userID string) (*StepResult, error) {
	sess := &Session{
		UserID:    userID,
		Kind:      KindSettings,
		Stage:     StageSettings1,
		Fields:    make(map[string]string),
		CreatedAt: w.now(),
	}
	w.sessions.Put(sess)

	w.logger.Info("settings run started", "user_id", userID)
	return w.stepFor(ctx, sess), nil
}

// CurrentStage returns the pending stage of the user's run, so an
// interrupted client can resume where it left off.
func (w *Wizard) CurrentStage(ctx context.Context, userID string) (*StepResult, error) {
	sess, ok := w.sessions.Get(userID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	w.logger.Debug("run resumed",
		"user_id", userID,
		"stage", sess.Stage,
		"age", w.now().Sub(sess.CreatedAt),
	)
	return w.stepFor(ctx, sess), nil
}

// Abort discards the user's run.
func (w *Wizard) Abort(userID string) error {
	if _, ok := w.sessions.Remove(userID); !ok {
		return ErrSessionNotFound
	}
	return nil
}

// Profile returns the stored profile, nil when none is on record.
func (w *Wizard) Profile(ctx context.Context, userID string) *store.Profile {
	return w.profiles.GetProfile(ctx, userID)
}

// Submit validates the values for the pending stage and advances the
// run. The final stage of the order flow renders and dispatches the
// receipt; the final settings stage saves the profile.
func (w *Wizard) Submit(ctx context.Context, userID string, values map[string]string) (*StepResult, error) {
	sess, ok := w.sessions.Get(userID)
	if !ok {
		return nil, ErrSessionNotFound
	}

	switch sess.Kind {
	case KindSettings:
		return w.submitSettings(ctx, sess, values)
	default:
		return w.submitOrder(ctx, sess, values)
	}
}

func (w *Wizard) submitOrder(ctx context.Context, sess *Session, values map[string]string) (*StepResult, error) {
	sch, err := schema.Lookup(sess.Template)
	if err != nil {
		return nil, err
	}

	collected, err := normalizeStage(w.stageFields(ctx, sess, sch), values)
	if err != nil {
		return nil, err
	}

	switch sess.Stage {
	case StageOrder1:
		merge(sess, collected)
		sess.Stage = StageOrder2
		w.sessions.Put(sess)
		return w.stepFor(ctx, sess), nil

	case StageOrder2:
		merge(sess, collected)
		if sch.Deferred {
			sess.Stage = StageOrder3
			w.sessions.Put(sess)
			return w.stepFor(ctx, sess), nil
		}
		return w.complete(ctx, sess, sch)

	case StageOrder3:
		merge(sess, collected)
		return w.complete(ctx, sess, sch)

	default:
		return nil, ErrSessionNotFound
	}
}

func (w *Wizard) submitSettings(ctx context.Context, sess *Session, values map[string]string) (*StepResult, error) {
	switch sess.Stage {
	case StageSettings1:
		collected, err := normalizeStage(schema.SettingsStage1Fields(), values)
		if err != nil {
			return nil, err
		}
		merge(sess, collected)
		sess.Stage = StageSettings2
		w.sessions.Put(sess)
		return w.stepFor(ctx, sess), nil

	case StageSettings2:
		collected, err := normalizeStage(schema.SettingsStage2Fields(), values)
		if err != nil {
			return nil, err
		}
		merge(sess, collected)

		// The pop is the at-most-once guard; sess carries the merged
		// values of both parts.
		if _, ok := w.sessions.Remove(sess.UserID); !ok {
			return nil, ErrSessionNotFound
		}

		profile := &store.Profile{
			FullName:   sess.Fields[schema.FieldFullName],
			Email:      sess.Fields[schema.FieldUserEmail],
			Street:     sess.Fields[schema.FieldStreet],
			City:       sess.Fields[schema.FieldCity],
			PostalCode: sess.Fields[schema.FieldPostalCode],
			Country:    sess.Fields[schema.FieldCountry],
		}
		if err := w.profiles.SetProfile(ctx, sess.UserID, profile); err != nil {
			return nil, fmt.Errorf("save profile: %w", err)
		}
		if profile.Email != "" {
			if err := w.profiles.SetEmail(ctx, sess.UserID, profile.Email); err != nil {
				w.logger.Warn("saving default email failed", "user_id", sess.UserID, "error", err)
			}
		}

		w.logger.Info("settings saved", "user_id", sess.UserID)
		return &StepResult{Done: true, Profile: profile}, nil

	default:
		return nil, ErrSessionNotFound
	}
}

// complete pops the session, renders the document and dispatches it.
// The pop is the synchronization point: a concurrent submit for the same
// user sees ErrSessionNotFound instead of a second receipt. The caller's
// sess holds the final-stage merge, so the order is built from it, not
// from the popped copy.
func (w *Wizard) complete(ctx context.Context, sess *Session, sch schema.Schema) (*StepResult, error) {
	userID := sess.UserID
	if _, ok := w.sessions.Remove(userID); !ok {
		return nil, ErrSessionNotFound
	}

	order := buildOrder(sess, sch)

	doc, err := w.loadDoc(sch.Document)
	if err != nil {
		return nil, fmt.Errorf("load document %s: %w", sch.Document, err)
	}

	var customer *render.Customer
	if p := w.profiles.GetProfile(ctx, userID); p != nil {
		customer = &render.Customer{
			FullName:   p.FullName,
			Email:      p.Email,
			Street:     p.Street,
			City:       p.City,
			PostalCode: p.PostalCode,
			Country:    p.Country,
		}
	}

	orderNumber := strconv.FormatInt(w.now().UnixMilli(), 10)
	html := w.engine.Render(doc, render.Values(order, customer, orderNumber))

	subject := fmt.Sprintf("%s — %s %s (%s)", sch.DisplayName(), order.Brand, order.Product, order.Size)
	out := &Outbound{
		FromName: sch.DisplayName(),
		To:       order.Email,
		Subject:  subject,
		HTML:     html,
	}

	if err := w.dispatcher.Send(ctx, out); err != nil {
		w.logger.Error("receipt dispatch failed",
			"user_id", userID,
			"template", sch.ID,
			"error", err,
		)
		return nil, &DispatchError{Err: err}
	}

	remaining := w.usage.DecrementLimit(ctx, userID)
	if err := w.profiles.SetEmail(ctx, userID, order.Email); err != nil {
		w.logger.Warn("saving default email failed", "user_id", userID, "error", err)
	}

	totals := render.ComputeTotals(order.Price, order.Quantity, order.Taxes)
	w.logger.Info("receipt dispatched",
		"user_id", userID,
		"template", sch.ID,
		"to", order.Email,
		"order_number", orderNumber,
	)

	return &StepResult{
		Done: true,
		Summary: &Summary{
			Template:    sch.ID,
			Product:     order.Brand + " " + order.Product,
			Size:        order.Size,
			Email:       order.Email,
			Total:       "$" + strconv.FormatFloat(totals.Total, 'f', 2, 64),
			OrderNumber: orderNumber,
			Remaining:   remaining,
		},
	}, nil
}

// stageFields returns the field list a session's pending stage expects.
func (w *Wizard) stageFields(ctx context.Context, sess *Session, sch schema.Schema) []schema.Field {
	switch sess.Stage {
	case StageOrder1:
		return schema.Stage1Fields()
	case StageOrder2:
		return w.prefillEmail(ctx, sess.UserID, schema.Stage2Fields(sch))
	case StageOrder3:
		return schema.Stage3Fields(sch)
	case StageSettings1:
		return schema.SettingsStage1Fields()
	case StageSettings2:
		return schema.SettingsStage2Fields()
	default:
		return nil
	}
}

func (w *Wizard) stepFor(ctx context.Context, sess *Session) *StepResult {
	var sch schema.Schema
	if sess.Kind == KindOrder {
		sch, _ = schema.Lookup(sess.Template)
	}

	fields := w.stageFields(ctx, sess, sch)
	if sess.Kind == KindSettings {
		fields = w.prefillProfile(ctx, sess.UserID, fields)
	}
	return &StepResult{Stage: sess.Stage, Fields: fields}
}

// prefillEmail sets the saved recipient address as the email default.
func (w *Wizard) prefillEmail(ctx context.Context, userID string, fields []schema.Field) []schema.Field {
	saved := w.profiles.GetEmail(ctx, userID)
	if saved == "" {
		return fields
	}
	out := make([]schema.Field, len(fields))
	copy(out, fields)
	for i := range out {
		if out[i].Key == schema.FieldEmail {
			out[i].Default = saved
		}
	}
	return out
}

// prefillProfile sets stored profile values as settings defaults.
func (w *Wizard) prefillProfile(ctx context.Context, userID string, fields []schema.Field) []schema.Field {
	p := w.profiles.GetProfile(ctx, userID)
	if p == nil {
		return fields
	}
	defaults := map[string]string{
		schema.FieldFullName:   p.FullName,
		schema.FieldUserEmail:  p.Email,
		schema.FieldStreet:     p.Street,
		schema.FieldCity:       p.City,
		schema.FieldPostalCode: p.PostalCode,
		schema.FieldCountry:    p.Country,
	}
	out := make([]schema.Field, len(fields))
	copy(out, fields)
	for i := range out {
		if v := defaults[out[i].Key]; v != "" {
			out[i].Default = v
		}
	}
	return out
}

func merge(sess *Session, collected map[string]string) {
	for k, v := range collected {
		sess.Fields[k] = v
	}
}

// buildOrder converts the collected strings into the typed order. The
// values were validated at submit time, so parse failures degrade to
// zero values rather than erroring.
func buildOrder(sess *Session, sch schema.Schema) render.Order {
	f := sess.Fields

	price, _ := strconv.ParseFloat(f[schema.FieldPrice], 64)
	taxes, _ := strconv.ParseFloat(f[schema.FieldTaxes], 64)
	quantity, err := strconv.ParseFloat(f[schema.FieldQuantity], 64)
	if err != nil || quantity < 1 {
		quantity = 1
	}

	return render.Order{
		Template: sch.ID,
		Brand:    f[schema.FieldBrand],
		Product:  f[schema.FieldProduct],
		Size:     f[schema.FieldSize],
		Price:    price,
		Quantity: quantity,
		Taxes:    taxes,

		Email:    f[schema.FieldEmail],
		Date:     f[schema.FieldDate],
		ImageURL: f[schema.FieldImageURL],

		StyleID:           f[schema.FieldStyleID],
		Colour:            f[schema.FieldColour],
		Reference:         f[schema.FieldReference],
		FirstName:         f[schema.FieldFirstName],
		WholeName:         f[schema.FieldWholeName],
		Currency:          f[schema.FieldCurrency],
		PhoneNumber:       f[schema.FieldPhoneNumber],
		CardEnd:           f[schema.FieldCardEnd],
		EstimatedDelivery: f[schema.FieldEstimatedDelivery],
	}
}
