package patient

import "errors"

var (
	ErrPatientNotFound      = errors.New("patient not found")
	ErrPatientAlreadyExists = errors.New("patient with this child code already exists")
	ErrInvalidSex           = errors.New("invalid sex value: must be M or F")
	ErrInvalidDateOfBirth   = errors.New("date of birth is not a valid calendar date")
	ErrChildCodeRequired    = errors.New("child code is required")
)
