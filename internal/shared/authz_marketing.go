package shared

// Marketing and affiliate program resources.
const (
	ResMarketing          = "marketing"
	ResMarketingCampaigns = "marketing-campaigns"
	ResAffiliates         = "affiliates"
	ResAffLinks           = "aff-links"
	ResAffPayouts         = "aff-payouts"
)

// MarketingResources lists marketing dashboards and affiliate screens.
func MarketingResources() []string {
	return []string{
		ResMarketing,
		ResMarketingCampaigns,
		ResAffiliates,
		ResAffLinks,
		ResAffPayouts,
	}
}
