package bulkconsume

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
)

// cursorVersion is bumped whenever the wire shape of BulkConsumeState
// changes in a way that would make an old token misleading rather than
// simply invalid. Decode must reject a mismatched version outright.
const cursorVersion = 1

// envelope is the versioned wire shape of a cursor. It is not a security
// boundary and need not be encrypted, only self-describing and safe to
// reject when stale or corrupt.
type envelope struct {
	Version int              `json:"v"`
	State   BulkConsumeState `json:"s"`
}

// EncodeCursor produces the opaque, URL-safe position token for s.
func EncodeCursor(s BulkConsumeState) (string, error) {
	raw, err := json.Marshal(envelope{Version: cursorVersion, State: s})
	if err != nil {
		return "", fmt.Errorf("encode cursor: %w", err)
	}
	return base64.URLEncoding.EncodeToString(raw), nil
}

// DecodeCursor parses a position token back into a BulkConsumeState,
// failing explicitly on malformed input, corrupt base64, or a version it
// does not recognize rather than risk misinterpreting it.
func DecodeCursor(token string) (BulkConsumeState, error) {
	var zero BulkConsumeState

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return zero, fmt.Errorf("position is not valid base64: %w", err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return zero, fmt.Errorf("position is not a valid cursor: %w", err)
	}

	if env.Version != cursorVersion {
		return zero, fmt.Errorf("position was minted by an incompatible version (got %d, want %d)", env.Version, cursorVersion)
	}

	if err := env.State.Validate(); err != nil {
		return zero, fmt.Errorf("position carries an invalid state: %w", err)
	}

	return env.State, nil
}

// NextCursor computes the cursor for the chunk following resolved,
// preserving every session-invariant field of prev and advancing only
// from and toOpt.
func NextCursor(prev BulkConsumeState, resolved CurrRange) BulkConsumeState {
	next := prev
	next.From = resolved.To
	next.ToOpt = resolved.NextToHint
	return next
}
