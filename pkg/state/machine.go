package state

// terminal states accept no further transitions.
var terminal = map[Status]bool{
	StatusDone:   true,
	StatusFailed: true,
}

// edges lists, for every non-terminal status, the successors a
// transition may target. FAILED is reachable from every non-terminal
// state and is added implicitly by CanTransition rather than repeated
// in every entry below.
var edges = map[Status][]Status{
	// Primary chain (spec §4.1).
	StatusNew:             {StatusBGRemoved},
	StatusBGRemoved:       {StatusBackgroundReady},
	StatusBackgroundReady: {StatusComposited},
	StatusComposited:      {StatusDerivatives},
	StatusDerivatives:     {StatusShopifyPush},
	StatusShopifyPush:     {StatusDone},

	// Legacy chain, recognized for historical records (spec §4.1 +
	// Open Question resolution in SPEC_FULL.md §9.2): it rejoins the
	// primary chain at SHOPIFY_PUSH.
	StatusQueued:       {StatusSegmenting},
	StatusSegmenting:   {StatusBGGenerating},
	StatusBGGenerating: {StatusCompositing},
	StatusCompositing:  {StatusShopifyPush},
}

// CanTransition reports whether target is a legal successor of from.
func CanTransition(from, target Status) bool {
	if terminal[from] {
		return false
	}
	if target == StatusFailed {
		return true
	}
	for _, s := range edges[from] {
		if s == target {
			return true
		}
	}
	return false
}

// IsTerminal reports whether status accepts no further transitions.
func IsTerminal(status Status) bool {
	return terminal[status]
}

// requiredFieldNames names the fields required to enter each target
// state, exactly per spec §4.1's table. States absent from this map
// (the legacy intermediate states) have no additional gate — they are
// recognized but the spec does not define required-field sets for
// them.
var requiredFieldNames = map[Status][]string{
	StatusNew:             {"sku", "image_hash", "theme"},
	StatusBGRemoved:       {"original_key", "cutout_key", "mask_key"},
	StatusBackgroundReady: {"background_keys"},
	StatusComposited:      {"composite_keys"},
	StatusDerivatives:     {"derivative_keys", "manifest_key"},
	StatusShopifyPush:     {"shopify_media_ids"},
	StatusDone:            {"manifest_key"},
	StatusFailed:          {"error_code", "error_message"},
}

// RequiredFields returns the field names that must be populated to
// enter target, for use in MissingRequiredFields error messages.
func RequiredFields(target Status) []string {
	return requiredFieldNames[target]
}

func missing(j Job, target Status) []string {
	var out []string
	for _, f := range requiredFieldNames[target] {
		if !present(j, f) {
			out = append(out, f)
		}
	}
	return out
}

func present(j Job, field string) bool {
	switch field {
	case "sku":
		return j.SKU != ""
	case "image_hash":
		return j.ImageHash != ""
	case "theme":
		return j.Theme != ""
	case "original_key":
		return j.OriginalKey != ""
	case "cutout_key":
		return j.CutoutKey != ""
	case "mask_key":
		return j.MaskKey != ""
	case "background_keys":
		return len(j.BackgroundKeys) > 0
	case "composite_keys":
		return len(j.CompositeKeys) > 0
	case "derivative_keys":
		return len(j.DerivativeKeys) > 0
	case "manifest_key":
		return j.ManifestKey != ""
	case "shopify_media_ids":
		return len(j.ShopifyMediaIDs) > 0
	case "error_code":
		return j.ErrorCode != ""
	case "error_message":
		return j.ErrorMessage != ""
	default:
		return false
	}
}
