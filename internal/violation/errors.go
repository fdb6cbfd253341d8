package violation

import (
	"errors"
	"fmt"
)

// ErrConfiguration marks a mismatch between the classifier vocabulary and the
// fine table. It is never recovered from.
var ErrConfiguration = errors.New("configuration error")

// ConfigurationError reports the tag that could not be priced.
type ConfigurationError struct {
	Tag    Tag
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: tag %q: %s", e.Tag, e.Reason)
}

// Is makes errors.Is(err, ErrConfiguration) match.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}
