package domain

import (
	"errors"
	"fmt"
	"net/http"
)

// ConfigurationError indica uma especificação de resolver inválida no registro.
type ConfigurationError struct {
	Spec   any
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid resolver %T: %s", e.Spec, e.Reason)
}

// ResolutionError embrulha a falha de um resolver (erro retornado ou panic).
type ResolutionError struct {
	Err error
}

func (e *ResolutionError) Error() string { return "resolver failed: " + e.Err.Error() }
func (e *ResolutionError) Unwrap() error { return e.Err }

// MiddlewareError é o primeiro erro que nenhum ErrorHandler consumiu.
type MiddlewareError struct {
	Err error
}

func (e *MiddlewareError) Error() string { return "middleware failed: " + e.Err.Error() }
func (e *MiddlewareError) Unwrap() error { return e.Err }

// StatusError carrega o status HTTP que o handler de erro padrão deve usar.
type StatusError struct {
	Status int
	Err    error
}

func (e *StatusError) Error() string { return e.Err.Error() }
func (e *StatusError) Unwrap() error { return e.Err }

// WithStatus anexa um status HTTP a err.
func WithStatus(err error, status int) error {
	if err == nil {
		return nil
	}
	return &StatusError{Status: status, Err: err}
}

// StatusOf devolve o status anexado a err, ou 500.
func StatusOf(err error) int {
	var se *StatusError
	if errors.As(err, &se) && se.Status > 0 {
		return se.Status
	}
	return http.StatusInternalServerError
}
