package domain

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrEmptyRecipe       = errors.New("recipe has no components")
	ErrInvalidRecipe     = errors.New("invalid recipe")
	ErrInsufficientData  = errors.New("insufficient data")
	ErrAlreadyResolved   = errors.New("warning already resolved")
	ErrInvalidRequest    = errors.New("invalid request")
	ErrConflict          = errors.New("conflict")
)

// NotFoundError names the missing entity so handlers can echo it back.
type NotFoundError struct {
	Entity string
	ID     any
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %v not found", e.Entity, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

func NewNotFound(entity string, id any) error {
	return &NotFoundError{Entity: entity, ID: id}
}

// InsufficientStockError carries both the required and the available quantity.
type InsufficientStockError struct {
	ItemID    int64
	ItemName  string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientStockError) Error() string {
	name := e.ItemName
	if name == "" {
		name = "-"
	}
	return fmt.Sprintf("insufficient stock for item %d (%s): required %s, available %s",
		e.ItemID, name, e.Required.String(), e.Available.String())
}

func (e *InsufficientStockError) Unwrap() error { return ErrInsufficientStock }

// InsufficientDataError reports a sample smaller than an analysis needs.
type InsufficientDataError struct {
	Subject   string
	Required  int
	Available int
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient data for %s: need %d samples, have %d", e.Subject, e.Required, e.Available)
}

func (e *InsufficientDataError) Unwrap() error { return ErrInsufficientData }

// AlreadyResolvedError names the warning that was resolved before.
type AlreadyResolvedError struct {
	WarningID int64
}

func (e *AlreadyResolvedError) Error() string {
	return fmt.Sprintf("warning %d already resolved", e.WarningID)
}

func (e *AlreadyResolvedError) Unwrap() error { return ErrAlreadyResolved }

// InvalidQuantity wraps ErrInvalidQuantity with the offending field and value.
func InvalidQuantity(field string, value decimal.Decimal) error {
	return fmt.Errorf("%w: %s must be positive, got %s", ErrInvalidQuantity, field, value.String())
}
