package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TransactionState represents the generic state of a payment transaction
type TransactionState string

const (
	StatePending TransactionState = "pending"
	StateDone    TransactionState = "done"
	StateError   TransactionState = "error"
	StateCancel  TransactionState = "cancel"
)

// IsTerminal reports whether no further state transition should occur
func (s TransactionState) IsTerminal() bool {
	return s == StateDone || s == StateError || s == StateCancel
}

// PaymentMethod represents the mobile money rail used by the customer
type PaymentMethod string

const (
	MethodMTN          PaymentMethod = "mtn_cm"
	MethodOrange       PaymentMethod = "orange_cm"
	MethodExpressUnion PaymentMethod = "express_union"
	MethodCash         PaymentMethod = "smobilpay_cash"
)

// paymentMethodByWireValue maps the provider's paymentMethod strings onto
// our enum. Unrecognized values fall back to MTN, the dominant rail.
var paymentMethodByWireValue = map[string]PaymentMethod{
	"MTN_CM":         MethodMTN,
	"ORANGE_CM":      MethodOrange,
	"EXPRESS_UNION":  MethodExpressUnion,
	"SMOBILPAY_CASH": MethodCash,
}

// ParsePaymentMethod converts a provider payment method string to a PaymentMethod
func ParsePaymentMethod(wire string) PaymentMethod {
	if m, ok := paymentMethodByWireValue[strings.ToUpper(wire)]; ok {
		return m
	}
	return MethodMTN
}

// PaymentTransaction represents a single payment attempt against enKap.
// MerchantReference is generated once at initiation time and is the only
// lookup key used by the notification channels.
type PaymentTransaction struct {
	ID                uuid.UUID        `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	MerchantReference string           `gorm:"type:varchar(64);uniqueIndex;not null" json:"merchant_reference"`
	PaymentID         string           `gorm:"type:varchar(100)" json:"payment_id"`
	State             TransactionState `gorm:"type:varchar(20);not null;default:'pending'" json:"state"`
	PaymentMethod     PaymentMethod    `gorm:"type:varchar(30)" json:"payment_method,omitempty"`
	PhoneNumber       string           `gorm:"type:varchar(30)" json:"phone_number,omitempty"`
	StatusDetails     string           `gorm:"type:text" json:"status_details"`
	Amount            float64          `gorm:"type:decimal(20,2);not null" json:"amount"`
	Currency          string           `gorm:"type:varchar(3);not null" json:"currency"`
	CustomerEmail     string           `gorm:"type:varchar(255)" json:"customer_email"`
	CustomerName      string           `gorm:"type:varchar(255)" json:"customer_name"`
	Description       string           `gorm:"type:text" json:"description"`
	CreatedAt         time.Time        `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
	UpdatedAt         time.Time        `gorm:"default:CURRENT_TIMESTAMP" json:"updated_at"`
	DeletedAt         gorm.DeletedAt   `gorm:"index" json:"-"`
}

// WebhookEvent is an audit record for every webhook received from enKap,
// kept regardless of whether the notification could be reconciled.
type WebhookEvent struct {
	ID                uuid.UUID  `gorm:"type:uuid;primary_key;default:uuid_generate_v4()" json:"id"`
	MerchantReference string     `gorm:"type:varchar(64);index" json:"merchant_reference"`
	RawData           JSON       `gorm:"type:jsonb" json:"raw_data"`
	Processed         bool       `gorm:"default:false" json:"processed"`
	ProcessedAt       *time.Time `json:"processed_at"`
	Error             string     `gorm:"type:text" json:"error,omitempty"`
	CreatedAt         time.Time  `gorm:"default:CURRENT_TIMESTAMP" json:"created_at"`
}
