package main

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"finitefield.org/hanko-storefront/internal/card"
	"finitefield.org/hanko-storefront/internal/checkout"
	"finitefield.org/hanko-storefront/internal/format"
	"finitefield.org/hanko-storefront/internal/platform/httpx"
)

// checkoutView is the localized checkout snapshot sent to the browser.
type checkoutView struct {
	checkout.View
	StepLabel     string `json:"stepLabel"`
	TotalsDisplay struct {
		Subtotal string `json:"subtotal"`
		Total    string `json:"total"`
	} `json:"totalsDisplay"`
	OrderDate string `json:"orderDate,omitempty"`
}

type selectAddressRequest struct {
	ID int64 `json:"id"`
}

type addAddressRequest struct {
	checkout.AddressEntry
	Save bool `json:"save"`
}

type cardFieldResponse struct {
	Field string           `json:"field"`
	Value string           `json:"value"`
	Caret int              `json:"caret"`
	Error *card.FieldError `json:"error,omitempty"`
}

func (sf *storefront) startCheckout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sess, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return
	}
	api := sf.api.WithToken(sess.Token)
	co, err := checkout.Start(ctx, checkout.Deps{
		Addresses:     api,
		Orders:        api,
		Cart:          sh.cart,
		Clock:         sf.now,
		Logger:        sf.logger.Named("checkout").With(zap.String("user_id", sess.UserID)),
		PaymentMethod: sf.cfg.Checkout.PaymentMethod,
	}, sess.UserID)
	if err != nil {
		sf.writeCheckoutError(w, r, err)
		return
	}
	sh.replace(co)
	sf.writeView(w, r, http.StatusCreated, co)
}

func (sf *storefront) viewCheckout(w http.ResponseWriter, r *http.Request) {
	co, ok := sf.activeCheckout(w, r)
	if !ok {
		return
	}
	sf.writeView(w, r, http.StatusOK, co)
}

func (sf *storefront) selectAddress(w http.ResponseWriter, r *http.Request) {
	co, ok := sf.activeCheckout(w, r)
	if !ok {
		return
	}
	var req selectAddressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := co.SelectAddress(req.ID); err != nil {
		sf.writeCheckoutError(w, r, err)
		return
	}
	sf.writeView(w, r, http.StatusOK, co)
}

func (sf *storefront) addAddress(w http.ResponseWriter, r *http.Request) {
	co, ok := sf.activeCheckout(w, r)
	if !ok {
		return
	}
	var req addAddressRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if _, err := co.AddAddress(r.Context(), req.AddressEntry, req.Save); err != nil {
		sf.writeCheckoutError(w, r, err)
		return
	}
	sf.writeView(w, r, http.StatusOK, co)
}

func (sf *storefront) updateCard(w http.ResponseWriter, r *http.Request) {
	co, ok := sf.activeCheckout(w, r)
	if !ok {
		return
	}
	name := chi.URLParam(r, "field")
	var ev card.Event
	if !decodeBody(w, r, &ev) {
		return
	}
	field, err := co.UpdateCard(name, ev)
	if err != nil {
		sf.writeCheckoutError(w, r, err)
		return
	}
	resp := cardFieldResponse{Field: name, Value: field.Display(), Caret: field.Caret()}
	if fe, ok := co.View().Card.Errors[name]; ok {
		fe.Message = sf.cardMessage(sf.lang(r), name, fe)
		resp.Error = &fe
	}
	httpx.WriteJSON(w, http.StatusOK, resp)
}

func (sf *storefront) nextStep(w http.ResponseWriter, r *http.Request) {
	co, ok := sf.activeCheckout(w, r)
	if !ok {
		return
	}
	if err := co.Next(); err != nil {
		sf.writeCheckoutError(w, r, err)
		return
	}
	sf.writeView(w, r, http.StatusOK, co)
}

func (sf *storefront) previousStep(w http.ResponseWriter, r *http.Request) {
	co, ok := sf.activeCheckout(w, r)
	if !ok {
		return
	}
	if err := co.Back(); err != nil {
		sf.writeCheckoutError(w, r, err)
		return
	}
	sf.writeView(w, r, http.StatusOK, co)
}

func (sf *storefront) submitOrder(w http.ResponseWriter, r *http.Request) {
	co, ok := sf.activeCheckout(w, r)
	if !ok {
		return
	}
	if _, err := co.Submit(r.Context()); err != nil {
		sf.writeCheckoutError(w, r, err)
		return
	}
	sf.writeView(w, r, http.StatusCreated, co)
}

func (sf *storefront) activeCheckout(w http.ResponseWriter, r *http.Request) (*checkout.Checkout, bool) {
	_, sh, ok := sf.current(r)
	if !ok {
		sf.writeSignInRequired(w, r)
		return nil, false
	}
	co := sh.current()
	if co == nil {
		httpx.WriteError(r.Context(), w, httpx.NewError("checkout_not_started", "no checkout in progress", http.StatusNotFound))
		return nil, false
	}
	return co, true
}

func (sf *storefront) writeView(w http.ResponseWriter, r *http.Request, status int, co *checkout.Checkout) {
	httpx.WriteJSON(w, status, sf.localizeView(sf.lang(r), co.View()))
}

func (sf *storefront) localizeView(lang string, view checkout.View) checkoutView {
	out := checkoutView{View: view}
	out.StepLabel = sf.messages.T(lang, "checkout.step."+string(view.Step))
	out.TotalsDisplay.Subtotal = format.Currency(view.Totals.Subtotal, sf.cfg.Checkout.Currency)
	out.TotalsDisplay.Total = format.Currency(view.Totals.Total, sf.cfg.Checkout.Currency)
	if view.Banner != nil {
		b := sf.localizeBanner(lang, *view.Banner)
		out.Banner = &b
	}
	if len(view.Card.Errors) > 0 {
		errs := make(map[string]card.FieldError, len(view.Card.Errors))
		for name, fe := range view.Card.Errors {
			fe.Message = sf.cardMessage(lang, name, fe)
			errs[name] = fe
		}
		out.Card.Errors = errs
	}
	if view.Order != nil && !view.Order.CreatedAt.IsZero() {
		out.OrderDate = format.Date(view.Order.CreatedAt, lang)
	}
	return out
}

// localizeBanner translates banner codes. Server-provided API messages are shown verbatim.
func (sf *storefront) localizeBanner(lang string, b checkout.Banner) checkout.Banner {
	if b.Code == checkout.BannerAPIFailure && b.Message != checkout.GenericFailureMessage {
		return b
	}
	key := "checkout.banner." + b.Code
	if !sf.messages.Has(key) {
		return b
	}
	b.Message = sf.messages.T(lang, key)
	return b
}

func (sf *storefront) cardMessage(lang, field string, fe card.FieldError) string {
	if fe.Reason == card.ReasonRequired {
		return sf.messages.T(lang, "card.error.required")
	}
	key := "card.error." + field
	if !sf.messages.Has(key) {
		return fe.Message
	}
	return sf.messages.T(lang, key)
}

func (sf *storefront) addressMessage(lang, field string, fe checkout.FieldError) string {
	key := "address.error." + field
	if !sf.messages.Has(key) {
		return fe.Message
	}
	return sf.messages.T(lang, key)
}

func (sf *storefront) writeCheckoutError(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	lang := sf.lang(r)

	var verr *checkout.ValidationError
	var apiErr *checkout.APIError
	switch {
	case errors.Is(err, checkout.ErrUnauthenticated):
		sf.writeSignInRequired(w, r)
	case errors.Is(err, checkout.ErrInvalidTransition):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_transition", err.Error(), http.StatusConflict))
	case errors.Is(err, checkout.ErrBusy):
		httpx.WriteError(ctx, w, httpx.NewError("request_in_flight", err.Error(), http.StatusConflict))
	case errors.Is(err, checkout.ErrAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", err.Error(), http.StatusNotFound))
	case errors.Is(err, card.ErrUnknownField):
		httpx.WriteError(ctx, w, httpx.NewError("unknown_field", err.Error(), http.StatusNotFound))
	case errors.As(err, &verr):
		banner := sf.localizeBanner(lang, checkout.BannerFor(err))
		details := map[string]any{}
		if len(verr.Fields) > 0 {
			fields := make(map[string]string, len(verr.Fields))
			for name, fe := range verr.Fields {
				if verr.Reason == checkout.ReasonAddressInvalid {
					fields[name] = sf.addressMessage(lang, name, fe)
				} else {
					fields[name] = sf.cardMessage(lang, name, fe)
				}
			}
			details["fields"] = fields
		}
		httpx.WriteError(ctx, w, httpx.NewError(banner.Code, banner.Message, http.StatusUnprocessableEntity).WithDetails(details))
	case errors.As(err, &apiErr) && apiErr.Status == http.StatusUnauthorized:
		sf.writeSignInRequired(w, r)
	default:
		banner := sf.localizeBanner(lang, checkout.BannerFor(err))
		httpx.WriteError(ctx, w, httpx.NewError(banner.Code, banner.Message, http.StatusBadGateway))
	}
}
