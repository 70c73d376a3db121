package constants

// DefaultTargetCurrency is the last-resort target currency when neither the
// job payload nor DEFAULT_TARGET_CURRENCY provides one.
const DefaultTargetCurrency = "ILS"

// LowConfidencePlaceholder replaces extracted content whose confidence is at
// or below the configured threshold.
const LowConfidencePlaceholder = "CONFIDENCE_TOO_LOW"

// ReportPlaceholder fills report cells for values that were never produced,
// so a reviewer can tell "failed/absent" apart from a legitimate zero.
const ReportPlaceholder = "N/A"
