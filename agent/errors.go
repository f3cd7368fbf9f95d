package agent

import "fmt"

// ConfigurationError reports invalid builder input. It is returned by the
// configuring call itself.
type ConfigurationError struct {
	Option string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("agent: invalid %s: %s", e.Option, e.Reason)
}

// ResolutionError reports a type whose description could not be resolved
// during a load attempt.
type ResolutionError struct {
	Name string
	Err  error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("agent: cannot resolve %s: %v", e.Name, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

// TransformationError reports a fault while rewriting a type, including a
// panic raised by a user transformer.
type TransformationError struct {
	Name string
	Err  error
}

func (e *TransformationError) Error() string {
	return fmt.Sprintf("agent: cannot transform %s: %v", e.Name, e.Err)
}

func (e *TransformationError) Unwrap() error { return e.Err }
