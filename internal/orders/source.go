package orders

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// Source kinds as stored in products.product_source.
const (
	SourceOwned       = "OWNED"
	SourceConsignment = "CONSIGNMENT"
)

// ProductSource is a closed set: Owned or Consignment. The unexported method keeps other
// packages from adding variants, so every switch over it can treat default as a bug.
type ProductSource interface {
	Kind() string
	sealedSource()
}

// Owned stock was bought with the vendor's own capital.
type Owned struct{}

func (Owned) Kind() string  { return SourceOwned }
func (Owned) sealedSource() {}

// Consignment stock belongs to a supplier; the vendor owes SupplierCost per unit sold.
type Consignment struct {
	SupplierCost  decimal.Decimal
	SupplierName  string
	SupplierPhone string
}

func (Consignment) Kind() string  { return SourceConsignment }
func (Consignment) sealedSource() {}

// ParseSource rebuilds a ProductSource from its stored columns.
func ParseSource(kind string, supplierCost decimal.Decimal, name, phone string) (ProductSource, error) {
	switch kind {
	case SourceOwned, "":
		return Owned{}, nil
	case SourceConsignment:
		return Consignment{SupplierCost: supplierCost, SupplierName: name, SupplierPhone: phone}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownProductSource, kind)
	}
}

// SourceColumns flattens a ProductSource for storage.
func SourceColumns(s ProductSource) (kind string, supplierCost decimal.Decimal, name, phone string, err error) {
	switch v := s.(type) {
	case Owned:
		return SourceOwned, decimal.Zero, "", "", nil
	case Consignment:
		return SourceConsignment, v.SupplierCost, v.SupplierName, v.SupplierPhone, nil
	case nil:
		return SourceOwned, decimal.Zero, "", "", nil
	default:
		return "", decimal.Zero, "", "", fmt.Errorf("%w: %T", ErrUnknownProductSource, s)
	}
}
