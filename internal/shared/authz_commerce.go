package shared

// Storefront operation resources.
const (
	ResOrders          = "orders"
	ResProductsCatalog = "products-catalog"
	ResProductsStock   = "products-stock"
	ResCoupons         = "coupons"
	ResCustomers       = "customers"
	ResLogistics       = "logistics"
)

// CommerceResources lists catalogue, order and fulfilment screens.
func CommerceResources() []string {
	return []string{
		ResOrders,
		ResProductsCatalog,
		ResProductsStock,
		ResCoupons,
		ResCustomers,
		ResLogistics,
	}
}
