package entitlements

import (
	"strings"

	"github.com/inspecto-app/inspecto/app/models"
)

// Limits are the per-tier feature caps. A negative value means unlimited.
type Limits struct {
	Properties     int  `json:"properties"`
	Templates      int  `json:"templates"`
	InspectorSeats int  `json:"inspector_seats"`
	ReportBranding bool `json:"report_branding"`
}

// LimitsFor returns the caps of a tier. Unknown tiers get the starter caps.
func LimitsFor(tier string) Limits {
	switch strings.ToLower(strings.TrimSpace(tier)) {
	case models.TierEnterprise:
		return Limits{Properties: -1, Templates: -1, InspectorSeats: -1, ReportBranding: true}
	case models.TierProfessional:
		return Limits{Properties: 250, Templates: 50, InspectorSeats: 10, ReportBranding: true}
	default:
		return Limits{Properties: 25, Templates: 5, InspectorSeats: 2}
	}
}

// Allows reports whether current usage may grow by one under limit.
func Allows(limit, current int) bool {
	return limit < 0 || current < limit
}
