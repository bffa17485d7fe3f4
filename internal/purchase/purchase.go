// Package purchase orchestrates VTU purchases: it reserves funds from
// the wallet, records a pending transaction, invokes the routed
// provider and settles or refunds.
package purchase

import (
	"errors"
	"fmt"
	"strings"

	"vtuplatform/internal/common/money"
	"vtuplatform/internal/provider"

	"github.com/oklog/ulid/v2"
)

// AirtimeRequest is a validated airtime purchase.
type AirtimeRequest struct {
	Network  string
	Phone    string
	Amount   money.Money
	Provider string // optional explicit provider code
}

// DataRequest is a validated data bundle purchase.
type DataRequest struct {
	Network  string
	Phone    string
	PlanID   string
	Amount   money.Money
	Provider string
}

// BillRequest is a validated cable, electricity or exam pin purchase.
type BillRequest struct {
	Service   provider.Service
	Biller    string
	Account   string
	Variation string
	Amount    money.Money
	Phone     string
	Provider  string
}

// ErrUnknownProvider is returned when an explicitly requested provider
// code is not registered or cannot serve the service.
var ErrUnknownProvider = errors.New("unknown or unsupported provider")

// NewReference builds a globally unique transaction reference. The
// provider prefix makes references traceable to a vendor in support
// tickets; the ulid carries the timestamp and entropy. Uniqueness is
// ultimately enforced by the unique index on reference_number.
func NewReference(providerCode string) string {
	return fmt.Sprintf("%s-%s", strings.ToUpper(providerCode), ulid.Make().String())
}
