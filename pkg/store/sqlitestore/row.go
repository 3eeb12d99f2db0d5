package sqlitestore

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/stewart-y/photopipeline/pkg/errx"
	"github.com/stewart-y/photopipeline/pkg/state"
)

// jobRow is the flat SQL row shape for the jobs table; list/map fields
// round-trip through JSON at the read/write boundary (spec §9).
type jobRow struct {
	ID                string         `db:"id"`
	SKU               string         `db:"sku"`
	ImageHash         string         `db:"image_hash"`
	Theme             string         `db:"theme"`
	Status            string         `db:"status"`
	PriorStatus       string         `db:"prior_status"`
	Attempt           int            `db:"attempt"`
	CreatedAt         string         `db:"created_at"`
	UpdatedAt         string         `db:"updated_at"`
	CompletedAt       sql.NullString `db:"completed_at"`
	LeaseUntil        sql.NullString `db:"lease_until"`
	LeaseOwner        sql.NullString `db:"lease_owner"`
	SourceURL         string         `db:"source_url"`
	OriginalKey       string         `db:"original_key"`
	CutoutKey         string         `db:"cutout_key"`
	MaskKey           string         `db:"mask_key"`
	BackgroundKeys    string         `db:"s3_bg_keys"`
	CompositeKeys     string         `db:"s3_composite_keys"`
	DerivativeKeys    string         `db:"s3_derivative_keys"`
	ManifestKey       string         `db:"manifest_key"`
	ShopifyMediaIDs   string         `db:"shopify_media_ids"`
	ErrorCode         string         `db:"error_code"`
	ErrorMessage      string         `db:"error_message"`
	ErrorStack        sql.NullString `db:"error_stack"`
	CostUSD           float64        `db:"cost_usd"`
	StepDurationsMs   string         `db:"step_durations_ms"`
	ProviderJobIDs    string         `db:"provider_job_ids"`
}

const rfc3339 = time.RFC3339Nano

func (r jobRow) toJob() (state.Job, error) {
	var bg, comp, der, media []string
	var steps map[string]int64
	var providerIDs map[string]string

	for _, pair := range []struct {
		raw  string
		dest *[]string
	}{
		{r.BackgroundKeys, &bg},
		{r.CompositeKeys, &comp},
		{r.DerivativeKeys, &der},
		{r.ShopifyMediaIDs, &media},
	} {
		if pair.raw == "" {
			continue
		}
		if err := json.Unmarshal([]byte(pair.raw), pair.dest); err != nil {
			return state.Job{}, errx.New(errx.Unknown, "malformed list field in job row: "+err.Error())
		}
	}
	if r.StepDurationsMs != "" {
		if err := json.Unmarshal([]byte(r.StepDurationsMs), &steps); err != nil {
			return state.Job{}, errx.New(errx.Unknown, "malformed step durations: "+err.Error())
		}
	}
	if r.ProviderJobIDs != "" {
		if err := json.Unmarshal([]byte(r.ProviderJobIDs), &providerIDs); err != nil {
			return state.Job{}, errx.New(errx.Unknown, "malformed provider job ids: "+err.Error())
		}
	}

	createdAt, err := time.Parse(rfc3339, r.CreatedAt)
	if err != nil {
		return state.Job{}, err
	}
	updatedAt, err := time.Parse(rfc3339, r.UpdatedAt)
	if err != nil {
		return state.Job{}, err
	}

	job := state.Job{
		ID:              r.ID,
		SKU:             r.SKU,
		ImageHash:       r.ImageHash,
		Theme:           r.Theme,
		Status:          state.Status(r.Status),
		PriorStatus:     state.Status(r.PriorStatus),
		Attempt:         r.Attempt,
		CreatedAt:       createdAt,
		UpdatedAt:       updatedAt,
		SourceURL:       r.SourceURL,
		OriginalKey:     r.OriginalKey,
		CutoutKey:       r.CutoutKey,
		MaskKey:         r.MaskKey,
		BackgroundKeys:  bg,
		CompositeKeys:   comp,
		DerivativeKeys:  der,
		ManifestKey:     r.ManifestKey,
		ShopifyMediaIDs: media,
		ErrorCode:       errx.Code(r.ErrorCode),
		ErrorMessage:    r.ErrorMessage,
		CostUSD:         r.CostUSD,
		StepDurationsMs: steps,
		ProviderJobIDs:  providerIDs,
	}
	if r.CompletedAt.Valid {
		t, err := time.Parse(rfc3339, r.CompletedAt.String)
		if err != nil {
			return state.Job{}, err
		}
		job.CompletedAt = &t
	}
	if r.LeaseUntil.Valid {
		t, err := time.Parse(rfc3339, r.LeaseUntil.String)
		if err != nil {
			return state.Job{}, err
		}
		job.LeaseUntil = &t
	}
	if r.LeaseOwner.Valid {
		owner := r.LeaseOwner.String
		job.LeaseOwner = &owner
	}
	if r.ErrorStack.Valid {
		stack := r.ErrorStack.String
		job.ErrorStack = &stack
	}
	return job, nil
}

func marshalList(s []string) string {
	if s == nil {
		s = []string{}
	}
	b, _ := json.Marshal(s)
	return string(b)
}

func marshalMapInt(m map[string]int64) string {
	if m == nil {
		m = map[string]int64{}
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func marshalMapStr(m map[string]string) string {
	if m == nil {
		m = map[string]string{}
	}
	b, _ := json.Marshal(m)
	return string(b)
}

func nullableTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: t.Format(rfc3339), Valid: true}
}

func nullableStr(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
