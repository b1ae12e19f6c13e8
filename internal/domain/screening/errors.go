package screening

import "errors"

var (
	ErrRecordNotFound   = errors.New("screening record not found")
	ErrSectionBlocked   = errors.New("previous section must be completed first")
	ErrInvalidSection   = errors.New("invalid section: must be 1, 2 or 3")
	ErrPayloadMismatch  = errors.New("payload does not belong to the requested section")
	ErrSectionForbidden = errors.New("clinicians may only complete their assigned section")
)
