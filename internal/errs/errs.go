// Package errs defines the harness's error taxonomy.
//
// Errors of the kinds enumerated here are *Error values wrapped with
// enough context (service name, operation, cause) to build a clear
// user-facing message. Callers classify them with Kindof, or with
// errors.Is against another *Error of the same Kind, never string
// matching. Not every error the harness returns is an *Error: config
// loading, seeding and per-worker setup return plain wrapped errors.
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies an error into one of the documented error kinds.
type Kind string

const (
	KindConfiguration      Kind = "configuration"
	KindDependencyNotReady Kind = "dependency_not_ready"
	KindRunnerFailure      Kind = "runner_failure"
	KindReadinessTimeout   Kind = "readiness_timeout"
	KindDBState            Kind = "db_state"
	KindOverrideDelivery   Kind = "override_delivery"
	KindUnsupported        Kind = "unsupported"
)

// Error is a tagged error carrying the failing service/operation.
type Error struct {
	Kind    Kind
	Service string
	Op      string
	Cause   error
}

func (e *Error) Error() string {
	switch {
	case e.Service != "" && e.Op != "":
		return fmt.Sprintf("%s: service %q: op %q: %v", e.Kind, e.Service, e.Op, e.Cause)
	case e.Service != "":
		return fmt.Sprintf("%s: service %q: %v", e.Kind, e.Service, e.Cause)
	default:
		return fmt.Sprintf("%s: %v", e.Kind, e.Cause)
	}
}

func (e *Error) Unwrap() error { return e.Cause }

// Is reports whether target is an *Error with the same Kind, so callers
// can write errors.Is(err, &errs.Error{Kind: errs.KindRunnerFailure}).
func (e *Error) Is(target error) bool {
	var other *Error
	if errors.As(target, &other) {
		return e.Kind == other.Kind
	}
	return false
}

func newErr(kind Kind, service, op string, cause error) *Error {
	return &Error{Kind: kind, Service: service, Op: op, Cause: cause}
}

func Configuration(op string, cause error) error {
	return newErr(KindConfiguration, "", op, cause)
}

func DependencyNotReady(service, dep string) error {
	return newErr(KindDependencyNotReady, service, "start", fmt.Errorf("dependency %q is not running", dep))
}

func RunnerFailure(service, op string, cause error) error {
	return newErr(KindRunnerFailure, service, op, cause)
}

func ReadinessTimeout(service string) error {
	return newErr(KindReadinessTimeout, service, "probe", errors.New("readiness exhausted all retries"))
}

func DBState(op string, cause error) error {
	return newErr(KindDBState, "", op, cause)
}

func OverrideDelivery(op string, cause error) error {
	return newErr(KindOverrideDelivery, "", op, cause)
}

func Unsupported(op string) error {
	return newErr(KindUnsupported, "", op, errors.New("not supported"))
}

// Kindof reports the Kind of err if it is (or wraps) an *Error.
func Kindof(err error) (Kind, bool) {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind, true
	}
	return "", false
}
