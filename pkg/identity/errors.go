package identity

import (
	"fmt"

	"github.com/Gokkul-M/istri-sub000/pkg/models"
)

// AllocationError reports that the counter transaction could not commit. The
// caller must not create a profile under a never-allocated identifier.
type AllocationError struct {
	Role models.Role
	Err  error
}

func (e *AllocationError) Error() string {
	return fmt.Sprintf("identity: allocating %s identifier: %v", e.Role, e.Err)
}

func (e *AllocationError) Unwrap() error { return e.Err }

// MappingError reports that the forward/reverse mapping pair could not be
// established. The caller must not treat the identity as established.
type MappingError struct {
	ExternalID string
	Err        error
}

func (e *MappingError) Error() string {
	return fmt.Sprintf("identity: mapping %s: %v", e.ExternalID, e.Err)
}

func (e *MappingError) Unwrap() error { return e.Err }
