package domain

import "fmt"

// StoreError indica falha na store compartilhada. A política (fail-open ou
// fail-closed) é de quem chama, não do limiter.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string { return fmt.Sprintf("rate limit store %s: %v", e.Op, e.Err) }
func (e *StoreError) Unwrap() error { return e.Err }
