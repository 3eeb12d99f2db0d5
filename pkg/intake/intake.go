package intake

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/stewart-y/photopipeline/pkg/state"
	"github.com/stewart-y/photopipeline/pkg/store"
)

func secondsToDuration(secs int) time.Duration { return time.Duration(secs) * time.Second }

// Outcome distinguishes a fresh job from a duplicate delivery (spec
// §4.3/§6.1).
type Outcome string

const (
	Created   Outcome = "created"
	Duplicate Outcome = "duplicate"
)

// Error is the typed failure shape for the 400/401/413 cases spec
// §6.1 names. HTTPStatus lets pkg/httpapi map it directly onto a
// response code without re-deriving it.
type Error struct {
	HTTPStatus int
	Message    string
	Fields     []FieldError
}

func (e *Error) Error() string {
	if len(e.Fields) > 0 {
		return fmt.Sprintf("%s: %s", e.Message, joinFieldErrors(e.Fields))
	}
	return e.Message
}

var (
	// ErrUnauthorized is returned when the signature is missing or
	// invalid.
	ErrUnauthorized = &Error{HTTPStatus: 401, Message: "missing or invalid webhook signature"}
	// ErrPayloadTooLarge is returned when the raw body exceeds
	// MaxBodyBytes.
	ErrPayloadTooLarge = &Error{HTTPStatus: 413, Message: "payload exceeds maximum size"}
)

func newValidationError(fields []FieldError) *Error {
	return &Error{HTTPStatus: 400, Message: "validation failed", Fields: fields}
}

func newQuotaError(sku string, max int) *Error {
	return &Error{HTTPStatus: 400, Message: fmt.Sprintf("SKU %s has reached its image quota of %d", sku, max)}
}

// Result is what Submit returns on success.
type Result struct {
	Outcome Outcome
	Job     state.Job
}

// Intaker wires signature verification, quota enforcement, the
// optional Redis dedupe fast path, and the durable store into the
// single entry point spec §4.3 describes.
type Intaker struct {
	Store          store.Store
	Redis          *redis.Client
	Logger         *zap.Logger
	Secret         string
	SkipSignature  bool
	DedupeWindow   int // seconds
	DefaultTheme   string
	ImageMaxPerSKU int
}

// New builds an Intaker. Redis and Logger may be nil: nil Redis
// disables the fast-path dedupe and falls through straight to
// Store.Create, nil Logger substitutes zap.NewNop().
func New(s store.Store, redisClient *redis.Client, logger *zap.Logger, secret string, skipSignature bool, dedupeWindowSecs int, defaultTheme string, imageMaxPerSKU int) *Intaker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if dedupeWindowSecs <= 0 {
		dedupeWindowSecs = 300
	}
	if defaultTheme == "" {
		defaultTheme = "default"
	}
	if imageMaxPerSKU <= 0 {
		imageMaxPerSKU = 4
	}
	return &Intaker{
		Store: s, Redis: redisClient, Logger: logger, Secret: secret, SkipSignature: skipSignature,
		DedupeWindow: dedupeWindowSecs, DefaultTheme: defaultTheme, ImageMaxPerSKU: imageMaxPerSKU,
	}
}

// Authenticate verifies the raw body's HMAC signature. It returns nil
// when verification is allowed to be skipped (development mode with no
// secret configured) per spec §4.3.
func (ik *Intaker) Authenticate(body []byte, sig string) error {
	if ik.SkipSignature && ik.Secret == "" {
		return nil
	}
	if !VerifySignature(ik.Secret, body, sig) {
		return ErrUnauthorized
	}
	return nil
}

// Submit validates, authenticates, deduplicates, quota-checks, and
// persists a webhook delivery. body must already have been captured
// before JSON parsing and bounded to MaxBodyBytes by the caller (the
// HTTP layer enforces this via http.MaxBytesReader; Submit
// double-checks len(body) defensively).
func (ik *Intaker) Submit(ctx context.Context, body []byte, sig string, p Payload) (Result, error) {
	if len(body) > MaxBodyBytes {
		return Result{}, ErrPayloadTooLarge
	}
	if err := ik.Authenticate(body, sig); err != nil {
		return Result{}, err
	}
	if fields := Validate(p); len(fields) > 0 {
		return Result{}, newValidationError(fields)
	}

	theme := ik.DefaultTheme

	count, err := ik.Store.CountDoneForSKU(ctx, p.SKU)
	if err != nil {
		return Result{}, fmt.Errorf("count done jobs for sku: %w", err)
	}
	if count >= ik.ImageMaxPerSKU {
		return Result{}, newQuotaError(p.SKU, ik.ImageMaxPerSKU)
	}

	if ik.Redis != nil {
		dedupeKey := fmt.Sprintf("dedupe:%s:%s:%s", p.SKU, p.SHA256, theme)
		ok, err := ik.Redis.SetNX(ctx, dedupeKey, 1, secondsToDuration(ik.DedupeWindow)).Result()
		if err != nil {
			ik.Logger.Warn("redis dedupe check failed, falling through to store", zap.Error(err))
		} else if !ok {
			// Fast-path duplicate signal only; Store.Create's unique
			// constraint is still the correctness authority, so we
			// still resolve the existing row through it rather than
			// trusting Redis alone.
			job, _, err := ik.Store.Create(ctx, p.SKU, p.SHA256, theme, p.ImageURL)
			if err != nil {
				return Result{}, fmt.Errorf("resolve duplicate job: %w", err)
			}
			return Result{Outcome: Duplicate, Job: job}, nil
		}
	}

	job, created, err := ik.Store.Create(ctx, p.SKU, p.SHA256, theme, p.ImageURL)
	if err != nil {
		return Result{}, fmt.Errorf("create job: %w", err)
	}
	if created {
		return Result{Outcome: Created, Job: job}, nil
	}
	return Result{Outcome: Duplicate, Job: job}, nil
}

// AsIntakeError unwraps err into an *Error if it is one, for callers
// that want to branch on HTTPStatus without a type switch.
func AsIntakeError(err error) (*Error, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e, true
	}
	return nil, false
}
