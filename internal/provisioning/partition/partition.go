package partition

import (
	"fmt"

	"github.com/imamik/stackfleet/internal/config"
	"github.com/imamik/stackfleet/internal/fleet"
)

// Split cuts hosts into contiguous groups of size, numbered from 1 in order.
// When len(hosts) is not a multiple of size, policy decides the fate of the
// remainder: keep forms a smaller final group, drop leaves it out and error
// refuses the split.
func Split(hosts []fleet.Host, size int, policy config.RemainderPolicy) ([]fleet.CloudGroup, error) {
	if size <= 0 {
		return nil, fmt.Errorf("group size must be positive, got %d", size)
	}
	if len(hosts) < size {
		return nil, &fleet.InsufficientHostsError{Available: len(hosts), GroupSize: size}
	}

	remainder := len(hosts) % size
	if remainder > 0 {
		switch policy {
		case config.RemainderKeep, "":
		case config.RemainderDrop:
			hosts = hosts[:len(hosts)-remainder]
		case config.RemainderError:
			return nil, &fleet.UnevenPartitionError{Available: len(hosts), GroupSize: size, Remainder: remainder}
		default:
			return nil, fmt.Errorf("unknown remainder policy %q", policy)
		}
	}

	groups := make([]fleet.CloudGroup, 0, (len(hosts)+size-1)/size)
	for start := 0; start < len(hosts); start += size {
		end := min(start+size, len(hosts))
		groups = append(groups, fleet.CloudGroup{
			Ordinal: len(groups) + 1,
			Hosts:   append([]fleet.Host(nil), hosts[start:end]...),
		})
	}
	return groups, nil
}
