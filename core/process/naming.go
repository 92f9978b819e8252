package process

import (
	"fmt"

	"github.com/google/uuid"
)

// Name builds the {workspace}.{service}.{uuid6} label used for every
// spawned process, using the first six hex characters of a fresh random
// UUID.
func Name(workspace, service string) string {
	id := uuid.New().String()
	suffix := id
	// UUID string form is 36 chars including hyphens; the first six
	// characters are always hex digits of the random portion.
	if len(id) > 6 {
		suffix = id[:6]
	}
	return fmt.Sprintf("%s.%s.%s", workspace, service, suffix)
}
