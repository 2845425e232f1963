package paystack

import "fmt"

// Error is returned for every failed provider call: transport failures,
// non-2xx responses and envelopes with status=false alike.
type Error struct {
	Op         string
	StatusCode int // 0 when the request never got a response
	Message    string
	Err        error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("paystack %s: %s: %v", e.Op, e.Message, e.Err)
	}
	return fmt.Sprintf("paystack %s: status %d: %s", e.Op, e.StatusCode, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}
