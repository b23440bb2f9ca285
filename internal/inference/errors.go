package inference

import (
	"fmt"
	"strings"
)

// UnavailableError reports that the service cannot predict at all until
// an explicit (re)load resolves it, e.g. no scaler is loaded. Process
// start is unaffected; health checks keep answering.
type UnavailableError struct {
	Reason string
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("service unavailable: %s", e.Reason)
}

// UnknownModelError reports a request naming a model with no artifact
// on disk. It always carries the currently available names so callers
// see what they can ask for.
type UnknownModelError struct {
	Name      string
	Available []string
}

func (e *UnknownModelError) Error() string {
	if len(e.Available) == 0 {
		return fmt.Sprintf("unknown model %q: no models available", e.Name)
	}
	return fmt.Sprintf("unknown model %q: available models: %s", e.Name, strings.Join(e.Available, ", "))
}
