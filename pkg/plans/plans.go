package plans

// Limits caps what a plan tier may consume.
type Limits struct {
	MaxPagesPerSite int
	MaxSites        int
}

const (
	TierTrialBasic = "trial_basic"
	TierBasic      = "basic"
	TierPro        = "pro"
	TierEnterprise = "enterprise"
)

var tierLimits = map[string]Limits{
	TierTrialBasic: {MaxPagesPerSite: 500, MaxSites: 1},
	TierBasic:      {MaxPagesPerSite: 2000, MaxSites: 5},
	TierPro:        {MaxPagesPerSite: 5000, MaxSites: 15},
	TierEnterprise: {MaxPagesPerSite: 10000, MaxSites: 50},
}

// LimitsFor returns the limits for a tier. Unknown or empty tiers fall
// back to trial_basic, the most restrictive plan.
func LimitsFor(tier string) Limits {
	if limits, ok := tierLimits[tier]; ok {
		return limits
	}
	return tierLimits[TierTrialBasic]
}

// ValidTier reports whether the tier name is known.
func ValidTier(tier string) bool {
	_, ok := tierLimits[tier]
	return ok
}
