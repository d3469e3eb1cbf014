package shared

// Core platform resources.
const (
	ResCoreUsers    = "core-users"
	ResCoreRoles    = "core-roles"
	ResCoreSettings = "core-settings"
	ResInfraMetrics = "infra-metrics"
)

// CoreResources lists the back-office administration screens.
func CoreResources() []string {
	return []string{
		ResCoreUsers,
		ResCoreRoles,
		ResCoreSettings,
		ResInfraMetrics,
	}
}

// ConsoleResources lists every resource of the admin console in menu order.
func ConsoleResources() []string {
	var all []string
	all = append(all, CoreResources()...)
	all = append(all, CommerceResources()...)
	all = append(all, MarketingResources()...)
	all = append(all, FinanceResources()...)
	all = append(all, ComplianceResources()...)
	return all
}
