package domain

type InventoryItem struct {
	ID   string
	Name string
	Qty  int
}
