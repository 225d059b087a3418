package envelope

import "errors"

// ErrAmbiguousPattern is returned by ValidatePattern when a subscription pattern has a "*" segment adjacent to a
// "**" segment, per design note (9)(1).
var ErrAmbiguousPattern = errors.New("subscription pattern mixes '*' and '**' ambiguously")
