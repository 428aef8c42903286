package instance

import (
	"fmt"
	"regexp"
)

var nameRegexp = regexp.MustCompile(`^[a-z0-9_-]{1,64}$`)

// ValidateName rejects names that are unsafe as a directory component.
func ValidateName(name string) error {
	if !nameRegexp.MatchString(name) {
		return fmt.Errorf("invalid instance name %q: must match %s", name, nameRegexp)
	}
	return nil
}
