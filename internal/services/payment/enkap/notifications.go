package enkap

import (
	"encoding/json"
	"fmt"
	"net/url"
)

// CanonicalNotification is the channel-independent representation of a
// payment status event. All three entry points (callback, return,
// webhook) normalize into this form before reconciliation.
type CanonicalNotification struct {
	MerchantReference string
	Status            string
	PaymentID         string
	PaymentMethod     string
	PhoneNumber       string
	StatusMessage     string

	// RawBody and RawSignature are set for the webhook channel only and
	// are used solely for authenticity verification.
	RawBody      []byte
	RawSignature string
}

// webhookPayload is the wire format of an enKap webhook body
type webhookPayload struct {
	MerchantReference string `json:"merchantReference"`
	Status            string `json:"status"`
	PaymentID         string `json:"paymentId"`
	PaymentMethod     string `json:"paymentMethod"`
	PhoneNumber       string `json:"phoneNumber"`
	StatusMessage     string `json:"statusMessage"`
}

// NotificationFromReturn builds a notification from the return-redirect
// channel. The provider appends status, paymentId and statusMessage as
// query parameters; the merchant reference comes from the URL path.
// Returns nil when status or paymentId is absent: the return view is then
// purely informational and no reconciliation takes place.
func NotificationFromReturn(merchantReference string, query url.Values) *CanonicalNotification {
	status := query.Get("status")
	paymentID := query.Get("paymentId")
	if status == "" || paymentID == "" {
		return nil
	}

	return &CanonicalNotification{
		MerchantReference: merchantReference,
		Status:            status,
		PaymentID:         paymentID,
		StatusMessage:     query.Get("statusMessage"),
	}
}

// NotificationFromCallback builds a notification from the callback
// channel. Query and form parameters are folded into one flat mapping
// (form values merged last, so they win on a name clash); the
// path-derived merchant reference overrides any same-named field.
func NotificationFromCallback(merchantReference string, query, form url.Values) *CanonicalNotification {
	fields := make(map[string]string)
	for key, values := range query {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}
	for key, values := range form {
		if len(values) > 0 {
			fields[key] = values[0]
		}
	}

	return &CanonicalNotification{
		MerchantReference: merchantReference,
		Status:            fields["status"],
		PaymentID:         fields["paymentId"],
		PaymentMethod:     fields["paymentMethod"],
		PhoneNumber:       fields["phoneNumber"],
		StatusMessage:     fields["statusMessage"],
	}
}

// NotificationFromWebhook builds a notification from a raw webhook body.
// The merchant reference is taken from the body only; there is no path
// parameter on this channel and its absence is a hard rejection.
func NotificationFromWebhook(rawBody []byte, signature string) (*CanonicalNotification, error) {
	var payload webhookPayload
	if err := json.Unmarshal(rawBody, &payload); err != nil {
		return nil, fmt.Errorf("enkap: invalid webhook payload: %w", err)
	}

	if payload.MerchantReference == "" {
		return nil, ErrMissingReference
	}

	return &CanonicalNotification{
		MerchantReference: payload.MerchantReference,
		Status:            payload.Status,
		PaymentID:         payload.PaymentID,
		PaymentMethod:     payload.PaymentMethod,
		PhoneNumber:       payload.PhoneNumber,
		StatusMessage:     payload.StatusMessage,
		RawBody:           rawBody,
		RawSignature:      signature,
	}, nil
}
