// Package intake is the idempotency and webhook-ingestion surface
// (C3): HMAC-verified payload validation, an optional Redis dedupe
// fast path, per-SKU quota enforcement, and the idempotent hand-off
// into Store.Create. Grounded on the teacher's webhook/dedup wiring in
// legacy/gateway/webhook_integration_test.go, generalized from
// Prometheus-alert ingestion to the 3JMS image webhook of spec §6.1.
package intake

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"
)

// MaxBodyBytes is the hard ceiling on raw webhook bodies (spec §4.3).
const MaxBodyBytes = 10 * 1024 * 1024

var skuPattern = regexp.MustCompile(`^[A-Za-z0-9_-]{1,100}$`)

// Payload is the raw webhook body shape (spec §6.1).
type Payload struct {
	Event    string `json:"event,omitempty"`
	SKU      string `json:"sku"`
	ImageURL string `json:"imageUrl"`
	SHA256   string `json:"sha256"`
	TakenAt  string `json:"takenAt,omitempty"`
}

// FieldError names one invalid field and why, surfaced verbatim in
// the 400 response body's details list.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Validate applies spec §4.3's field rules, returning every violation
// found (not just the first) so the caller can report them all at
// once.
func Validate(p Payload) []FieldError {
	var errs []FieldError

	if !skuPattern.MatchString(p.SKU) {
		errs = append(errs, FieldError{Field: "sku", Message: "must be 1-100 chars matching [A-Za-z0-9_-]+"})
	}

	if !isAbsoluteHTTPURL(p.ImageURL) {
		errs = append(errs, FieldError{Field: "imageUrl", Message: "must be an absolute http(s) URL"})
	}

	if !isLowerHex64(p.SHA256) {
		errs = append(errs, FieldError{Field: "sha256", Message: "must be exactly 64 lowercase hex characters"})
	}

	if p.TakenAt != "" {
		if _, err := time.Parse(time.RFC3339, p.TakenAt); err != nil {
			errs = append(errs, FieldError{Field: "takenAt", Message: "must be an ISO-8601 timestamp"})
		}
	}

	return errs
}

func isAbsoluteHTTPURL(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func isLowerHex64(s string) bool {
	if len(s) != 64 {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && (r < 'a' || r > 'f') {
			return false
		}
	}
	return true
}

func (f FieldError) String() string {
	return fmt.Sprintf("%s: %s", f.Field, f.Message)
}

// joinFieldErrors renders FieldErrors into one message, used when a
// caller wants a single error string rather than the structured list.
func joinFieldErrors(errs []FieldError) string {
	parts := make([]string, len(errs))
	for i, e := range errs {
		parts[i] = e.String()
	}
	return strings.Join(parts, "; ")
}
