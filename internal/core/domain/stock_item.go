package domain

import "time"

type StockItem struct {
	ID                string
	Name              string
	Category          string
	TotalQuantity     int
	AvailableQuantity int
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// Reserved is the quantity currently held by events according to the ledger.
func (i StockItem) Reserved() int {
	return i.TotalQuantity - i.AvailableQuantity
}
