package domain

import "errors"

var (
	ErrConfiguration        = errors.New("missing configuration")
	ErrPaymentNotSuccessful = errors.New("payment not successful")
	ErrReservationNotFound  = errors.New("reservation not found")
	ErrSoldOut              = errors.New("tier sold out")
	ErrUnknownAddOn         = errors.New("unknown add-on")
	ErrPartialSettlement    = errors.New("partial settlement failure")
	ErrSerializationFailure = errors.New("serialization failure")
	ErrNotFound             = errors.New("not found")
	ErrConflict             = errors.New("conflict")
	ErrInvalidInput         = errors.New("invalid input")
)
