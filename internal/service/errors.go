package service

import (
	"errors"
	"fmt"

	"github.com/happydevs-studio/wool-witch/internal/repository"
	"github.com/happydevs-studio/wool-witch/internal/validator"
)

var (
	ErrEmptyCart      = errors.New("cart is empty")
	ErrCartChanged    = errors.New("items in the cart changed")
	ErrOrderRejected  = errors.New("order rejected")
	ErrCheckoutFailed = errors.New("checkout failed")
	ErrInvalidPayment = errors.New("invalid payment details")
)

// ItemsChangedError lists the lines that stopped validating at checkout.
type ItemsChangedError struct {
	Items []validator.InvalidItem
}

func (e *ItemsChangedError) Error() string {
	return fmt.Sprintf("%s: %d item(s) need review", ErrCartChanged, len(e.Items))
}

func (e *ItemsChangedError) Is(target error) bool {
	return target == ErrCartChanged
}

// UserMessage turns a checkout error into text fit for a shopper.
func UserMessage(err error) string {
	var changed *ItemsChangedError
	switch {
	case err == nil:
		return ""
	case errors.As(err, &changed), errors.Is(err, ErrCartChanged):
		return "Some items in your cart have changed or are no longer available. Please review your cart."
	case errors.Is(err, ErrEmptyCart):
		return "Your cart is empty."
	case errors.Is(err, ErrOrderRejected) && errors.Is(err, repository.ErrAmountMismatch):
		return "We could not place your order because the prices no longer match. Please review your cart and try again."
	case errors.Is(err, ErrOrderRejected):
		return "We could not accept your order. Please check your details and try again."
	case errors.Is(err, ErrInvalidPayment):
		return "Please check your payment details."
	case errors.Is(err, repository.ErrBackendUnavailable):
		return "The shop is temporarily unavailable. Please try again shortly."
	default:
		return "Something went wrong while placing your order. Please try again."
	}
}
