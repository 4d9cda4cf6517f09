package fleet

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMissingJobID is returned when no reservation is requested and no job id
// was supplied, leaving nothing to provision against.
var ErrMissingJobID = errors.New("no job id: enable reservation or pass an existing job id")

// MalformedAddressError reports an address that does not carry the expected
// site domain suffix.
type MalformedAddressError struct {
	Address string
	Site    string
	Reason  string
}

func (e *MalformedAddressError) Error() string {
	return fmt.Sprintf("malformed address %q for site %q: %s", e.Address, e.Site, e.Reason)
}

// DeploymentBelowThresholdError reports that imaging left fewer usable hosts
// than required.
type DeploymentBelowThresholdError struct {
	FailedHosts []string
	Succeeded   int
	Required    int
}

func (e *DeploymentBelowThresholdError) Error() string {
	return fmt.Sprintf("deployment below threshold: %d hosts deployed, %d required (failed: %s)",
		e.Succeeded, e.Required, strings.Join(e.FailedHosts, ", "))
}

// InsufficientHostsError reports that not even one full group can be formed.
type InsufficientHostsError struct {
	Available int
	GroupSize int
}

func (e *InsufficientHostsError) Error() string {
	return fmt.Sprintf("insufficient hosts: %d available, group size is %d", e.Available, e.GroupSize)
}

// UnevenPartitionError is raised under the "error" remainder policy when the
// host count is not a multiple of the group size.
type UnevenPartitionError struct {
	Available int
	GroupSize int
	Remainder int
}

func (e *UnevenPartitionError) Error() string {
	return fmt.Sprintf("%d hosts cannot be split evenly into groups of %d (%d left over)",
		e.Available, e.GroupSize, e.Remainder)
}

// ControllerDiscoveryError reports the hosts of one group whose probe failed.
type ControllerDiscoveryError struct {
	Group       int
	FailedHosts []string
}

func (e *ControllerDiscoveryError) Error() string {
	return fmt.Sprintf("controller discovery failed in group %d on hosts: %s",
		e.Group, strings.Join(e.FailedHosts, ", "))
}

// IsFatal reports whether err must stop the whole run. Verification errors
// are recovered at the group boundary and never count as fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	var discovery *ControllerDiscoveryError
	return !errors.As(err, &discovery)
}
