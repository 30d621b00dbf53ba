package outbound

import (
	"time"

	"github.com/shurfire/rfgateway/internal/wire"
)

// Policy is the per-destination timing and retry policy: rather than scatter
// retry counts and timeouts across the call sites that need them, they live
// in one table indexed by destination kind so tuning stays centralized.
type Policy struct {
	ResponseTimeout time.Duration
	RetryWait       time.Duration
	MaxRetries      int
}

// DefaultPolicies returns the source-tuned policy values. Both retry caps
// are 1 in the original firmware; that is kept as-is here and treated as
// policy input, overridable via configuration, rather than guessed at.
func DefaultPolicies() map[wire.Destination]Policy {
	return map[wire.Destination]Policy{
		wire.DestRF: {
			ResponseTimeout: 2 * time.Second,
			RetryWait:       200 * time.Millisecond,
			MaxRetries:      1,
		},
		wire.DestConfig: {
			ResponseTimeout: 1 * time.Second,
			RetryWait:       2 * time.Millisecond,
			MaxRetries:      1,
		},
	}
}
