package shared

// Finance resources.
const (
	ResFinanceReports = "finance-reports"
)

// FinanceResources lists finance screens.
func FinanceResources() []string {
	return []string{ResFinanceReports}
}
