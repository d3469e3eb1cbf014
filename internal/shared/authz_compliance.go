package shared

// Compliance and storefront configuration resources.
const (
	ResLGPD        = "lgpd"
	ResPWASettings = "pwa-settings"
)

// ComplianceResources lists LGPD tooling and PWA configuration screens.
func ComplianceResources() []string {
	return []string{ResLGPD, ResPWASettings}
}
