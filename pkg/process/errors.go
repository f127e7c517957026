package process

import "fmt"

// ConfigurationError marks a structural problem with the process graph:
// dangling references, missing routing labels, unresolved agents. These
// are caller mistakes, not runtime failures.
type ConfigurationError struct {
	Detail string
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	return "process configuration error: " + e.Detail
}

func configErrf(format string, args ...interface{}) *ConfigurationError {
	return &ConfigurationError{Detail: fmt.Sprintf(format, args...)}
}
