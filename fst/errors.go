package fst

import E "github.com/sagernet/sing-fst/internal/exceptions"

// Error kinds surfaced by the core. Internal range checks and invariant
// violations are contract violations and panic instead — they are not
// reachable through the public API with valid inputs.
var (
	// ErrDuplicateOrUnsortedKey is returned by Build when keys are not
	// strictly increasing.
	ErrDuplicateOrUnsortedKey = E.New("duplicate or unsorted key")

	// ErrValueCountMismatch is returned by Build when len(keys) != len(values).
	ErrValueCountMismatch = E.New("value count mismatch")

	// ErrDeserializeFormat is returned when a serialized blob has an
	// inconsistent header (bad alignment, word count mismatch, truncated).
	ErrDeserializeFormat = E.New("invalid serialized fst format")

	// ErrNotFound names the not-found outcome. LookupKey does not return it:
	// it reports an absent key through its boolean result.
	ErrNotFound = E.New("key not found")
)
