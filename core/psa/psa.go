package psa

import (
	"context"

	"github.com/shopspring/decimal"
)

// BillingLine is one billable item on a client's service agreement in the PSA.
type BillingLine struct {
	// AgreementID is the PSA's internal agreement identifier.
	AgreementID string `json:"agreement_id"`
	// ExternalAgreementID is the agreement identifier used by the PSA API.
	ExternalAgreementID string `json:"external_agreement_id"`
	// ExternalLineID is the billing line identifier used by the PSA API.
	ExternalLineID string `json:"external_line_id"`
	// ProductName is the product as named on the agreement.
	ProductName string `json:"product_name"`
	// Quantity is the billed quantity.
	Quantity int `json:"quantity"`
	// UnitPrice is the per-unit sell price.
	UnitPrice decimal.Decimal `json:"unit_price"`
	// UnitCost is the per-unit cost.
	UnitCost decimal.Decimal `json:"unit_cost"`
	// Billable indicates the line is invoiced to the client.
	Billable bool `json:"billable"`
	// Cancelled indicates the line has been cancelled on the agreement.
	Cancelled bool `json:"cancelled"`
}

// Client is the capability the reconciliation engine needs from the PSA.
// The engine never talks to the PSA API directly beyond these two calls.
type Client interface {
	// ListBillingLines returns the current billing lines for a PSA company.
	ListBillingLines(ctx context.Context, psaCompanyID string) ([]BillingLine, error)

	// UpdateLineQuantity sets the quantity of one billing line on an agreement.
	UpdateLineQuantity(ctx context.Context, agreementExternalID, lineExternalID string, quantity int) error
}
