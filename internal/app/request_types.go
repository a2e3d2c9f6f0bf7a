package app

import "github.com/shopspring/decimal"

// SubmitScanRequest is one physical or manual scan at a station.
type SubmitScanRequest struct {
	OrderID    string
	Barcode    string
	OperatorID string
}

// CreateOrderRequest is the input for registering an order. Empty ids are generated.
type CreateOrderRequest struct {
	ID          string           `json:"id"`
	OrderNumber string           `json:"order_number"`
	CustomerRef string           `json:"customer_ref"`
	Note        string           `json:"note"`
	Items       []OrderItemInput `json:"items"`
}

// OrderItemInput is a single line within a CreateOrderRequest.
type OrderItemInput struct {
	ID           string          `json:"id"`
	TypeTag      string          `json:"type_tag"`
	ProductLabel string          `json:"product_label"`
	Quantity     int             `json:"quantity"`
	Width        decimal.Decimal `json:"width"`
	Length       decimal.Decimal `json:"length"`
	Weight       decimal.Decimal `json:"weight"`
}

// RegisterUnitRequest is the input for adding an inventory unit.
type RegisterUnitRequest struct {
	Barcode   string          `json:"barcode"`
	Category  string          `json:"category"`
	Bulk      bool            `json:"bulk"`
	Inspected bool            `json:"inspected"`
	Remaining decimal.Decimal `json:"remaining"` // bulk units only
}
