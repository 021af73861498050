package worker

import "errors"

// errIneligible marks a failed eligibility check; it routes through the
// same retry/DLQ path as any other processing error.
var errIneligible = errors.New("lead is not eligible for send")

// errNotSent covers a provider response with Success=false but no error.
var errNotSent = errors.New("provider reported unsuccessful send")
