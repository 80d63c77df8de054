package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// OrderStatus is the lifecycle status of an order
type OrderStatus string

const (
	OrderPending    OrderStatus = "PENDING"
	OrderPreparing  OrderStatus = "PREPARING"
	OrderDispatched OrderStatus = "DISPATCHED"
	OrderDelivered  OrderStatus = "DELIVERED"
	OrderCanceled   OrderStatus = "CANCELED"
)

// ParseOrderStatus normalizes a status string
func ParseOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(strings.ToUpper(strings.TrimSpace(s)))
	switch status {
	case OrderPending, OrderPreparing, OrderDispatched, OrderDelivered, OrderCanceled:
		return status, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownOrderStatus, s)
}

var nonDigits = regexp.MustCompile(`\D`)

// PhoneToAddress converts a free-form phone number to a personal transport address.
// Non-digits are removed and the default country code is prefixed when missing.
func PhoneToAddress(phone string) (string, error) {
	digits := nonDigits.ReplaceAllString(phone, "")
	if len(digits) < 8 {
		return "", fmt.Errorf("%w: %q", ErrInvalidPhone, phone)
	}
	if !strings.HasPrefix(digits, DefaultCountryDDI) {
		digits = DefaultCountryDDI + digits
	}
	return digits + PersonalSuffix, nil
}
