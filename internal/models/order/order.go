package order

import (
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Status is free-form. Any non-empty value the owner sends is stored.
type Status string

const Pending Status = "pending"

// Order description. Fields aligned for the GC optimal scanning.
type Order struct {
	CreatedAt   time.Time       `json:"createdAt"`
	UpdatedAt   time.Time       `json:"updatedAt"`
	TotalAmount decimal.Decimal `json:"totalAmount"`
	Status      Status          `json:"status"`
	Items       json.RawMessage `json:"items"`
	ID          int64           `json:"id"`
	UserID      int             `json:"userId"`
}
