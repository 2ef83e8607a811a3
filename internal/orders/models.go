package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCashOnDelivery PaymentMethod = "CASH_ON_DELIVERY"
	PaymentBankTransfer   PaymentMethod = "BANK_TRANSFER"
	PaymentEWallet        PaymentMethod = "E_WALLET_TRANSFER"
	PaymentInstallment4   PaymentMethod = "INSTALLMENT_4"
	PaymentInstallment6   PaymentMethod = "INSTALLMENT_6"
	PaymentInstallment12  PaymentMethod = "INSTALLMENT_12"
	PaymentInstallment24  PaymentMethod = "INSTALLMENT_24"
)

var installmentMonths = map[PaymentMethod]int{
	PaymentInstallment4:  4,
	PaymentInstallment6:  6,
	PaymentInstallment12: 12,
	PaymentInstallment24: 24,
}

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCashOnDelivery, PaymentBankTransfer, PaymentEWallet:
		return true
	}
	_, ok := installmentMonths[m]
	return ok
}

// InstallmentMonths returns the plan length for installment methods, 0 otherwise.
func (m PaymentMethod) InstallmentMonths() int { return installmentMonths[m] }

type DeliveryMethod string

const (
	DeliveryHome   DeliveryMethod = "HOME_DELIVERY"
	DeliveryPickup DeliveryMethod = "STORE_PICKUP"
)

func (m DeliveryMethod) Valid() bool { return m == DeliveryHome || m == DeliveryPickup }

type PaymentStatus string

const (
	PaymentPending         PaymentStatus = "PENDING"
	PaymentPaid            PaymentStatus = "PAID"
	PaymentDeliveryFeeOnly PaymentStatus = "DELIVERY_FEE_ONLY"
)

type InspectionResult string

const (
	InspectionAccepted InspectionResult = "ACCEPTED"
	InspectionRejected InspectionResult = "REJECTED"
)

type Product struct {
	ID        string
	VendorID  string
	Name      string
	Stock     int
	Price     decimal.Decimal
	Source    ProductSource
	CreatedAt time.Time
	UpdatedAt time.Time
}

type Customer struct {
	ID    string
	Name  string
	Phone string
}

type Vendor struct {
	ID   string
	Name string
	// CapitalBalance mirrors the head of the capital ledger; written only by ledger appends.
	CapitalBalance decimal.Decimal
}

type DeliveryStaff struct {
	ID                   string
	Name                 string
	Phone                string
	TotalDeliveries      int
	SuccessfulDeliveries int
}

type Order struct {
	ID              string
	OrderNumber     string
	CustomerID      string
	VendorID        string
	DeliveryStaffID string
	Status          Status // lihat status.go
	PaymentStatus   PaymentStatus
	PaymentMethod   PaymentMethod
	DeliveryMethod  DeliveryMethod
	DeliveryAddress string
	DeliveryPhone   string
	Governorate     string
	PickupLocation  string
	EWalletType     string
	Notes           string

	TotalAmount     decimal.Decimal
	DeliveryFee     decimal.Decimal
	FinalAmount     decimal.Decimal
	DownPayment     decimal.NullDecimal
	RemainingAmount decimal.NullDecimal

	InspectionResult InspectionResult
	RejectionReason  string
	Deleted          bool

	CreatedAt   time.Time
	UpdatedAt   time.Time
	DeliveredAt *time.Time

	Items           []OrderItem
	Customer        *Customer
	InstallmentPlan *InstallmentPlan
}

type OrderItem struct {
	ID          string
	OrderID     string
	ProductID   string
	ProductName string
	Quantity    int
	Price       decimal.Decimal
	Source      ProductSource
}

// LineTotal is price × quantity.
func (it OrderItem) LineTotal() decimal.Decimal {
	return it.Price.Mul(decimal.NewFromInt(int64(it.Quantity)))
}

type InstallmentPlan struct {
	ID             string
	OrderID        string
	TotalAmount    decimal.Decimal
	DownPayment    decimal.Decimal
	MonthlyAmount  decimal.Decimal
	NumberOfMonths int
	InterestRate   decimal.Decimal
	StartDate      time.Time
	EndDate        time.Time
}

type ChangeType string

const (
	ChangeSale       ChangeType = "SALE"
	ChangePurchase   ChangeType = "PURCHASE"
	ChangeAdjustment ChangeType = "ADJUSTMENT"
	ChangeReversal   ChangeType = "REVERSAL"
)

type InventoryLog struct {
	ID          string
	ProductID   string
	OrderID     string
	ChangeType  ChangeType
	Quantity    int // signed
	StockBefore int
	StockAfter  int
	Notes       string
	CreatedAt   time.Time
}

type CapitalTxType string

const (
	CapitalDeposit           CapitalTxType = "DEPOSIT"
	CapitalWithdrawal        CapitalTxType = "WITHDRAWAL"
	CapitalPurchase          CapitalTxType = "PURCHASE"
	CapitalConsignmentProfit CapitalTxType = "CONSIGNMENT_PROFIT"
	CapitalAdjustment        CapitalTxType = "ADJUSTMENT"
)

type CapitalTransaction struct {
	ID            string
	VendorID      string
	Seq           int64
	Type          CapitalTxType
	Amount        decimal.Decimal // signed
	BalanceBefore decimal.Decimal
	BalanceAfter  decimal.Decimal
	OrderID       string
	Description   string
	CreatedAt     time.Time
}

type SupplierPaymentStatus string

const (
	SupplierPaymentPending SupplierPaymentStatus = "PENDING"
	SupplierPaymentPaid    SupplierPaymentStatus = "PAID"
)

type SupplierPayment struct {
	ID            string
	VendorID      string
	ProductID     string
	OrderID       string
	SupplierName  string
	SupplierPhone string
	Quantity      int
	AmountDue     decimal.Decimal
	AmountPaid    decimal.Decimal
	Profit        decimal.Decimal
	Status        SupplierPaymentStatus
	CreatedAt     time.Time
}

const NotificationNewOrder = "NEW_ORDER"

type VendorNotification struct {
	ID        string
	VendorID  string
	Type      string
	Title     string
	Message   string
	OrderID   string
	CreatedAt time.Time
}
