package watch

import (
	"strconv"
	"strings"

	"github.com/ferrisk/runwatch/errors"
)

// Correlation tokens tie an interactive button back to the run(s) it refers
// to. They travel as Telegram callback data, which caps them at 64 bytes, so
// the cycle id is a short hex slug rather than a full UUID.
//
// Wire format: rw1|<verb>|<cycle>[|<runID>]

const (
	tokenPrefix = "rw1"
	tokenSep    = "|"

	// MaxTokenBytes is the Telegram callback_data limit.
	MaxTokenBytes = 64
)

// Verb says what a token asks for.
type Verb string

const (
	// VerbAll confirms repair of every record in the cycle.
	VerbAll Verb = "all"
	// VerbDecline cancels the cycle with no platform calls.
	VerbDecline Verb = "no"
	// VerbRun confirms repair of exactly one run.
	VerbRun Verb = "run"
)

// Token is a parsed correlation token.
type Token struct {
	Verb    Verb
	CycleID string
	RunID   int64 // set only for VerbRun
}

// String encodes the token in wire format.
func (t Token) String() string {
	if t.Verb == VerbRun {
		return strings.Join([]string{tokenPrefix, string(t.Verb), t.CycleID, strconv.FormatInt(t.RunID, 10)}, tokenSep)
	}
	return strings.Join([]string{tokenPrefix, string(t.Verb), t.CycleID}, tokenSep)
}

// ParseToken decodes a callback payload. Anything malformed is reported as an
// expired token: from the operator's point of view a garbled button and a
// superseded button are the same thing.
func ParseToken(s string) (Token, error) {
	if len(s) > MaxTokenBytes {
		return Token{}, errors.Wrapf(errors.ErrExpiredToken, "token exceeds %d bytes", MaxTokenBytes)
	}

	parts := strings.Split(s, tokenSep)
	if len(parts) < 3 || parts[0] != tokenPrefix {
		return Token{}, errors.Wrapf(errors.ErrExpiredToken, "unrecognized token %q", s)
	}

	tok := Token{Verb: Verb(parts[1]), CycleID: parts[2]}
	switch tok.Verb {
	case VerbAll, VerbDecline:
		if len(parts) != 3 {
			return Token{}, errors.Wrapf(errors.ErrExpiredToken, "unexpected token arity %q", s)
		}
	case VerbRun:
		if len(parts) != 4 {
			return Token{}, errors.Wrapf(errors.ErrExpiredToken, "run token missing run id %q", s)
		}
		runID, err := strconv.ParseInt(parts[3], 10, 64)
		if err != nil {
			return Token{}, errors.Wrapf(errors.ErrExpiredToken, "bad run id in token %q", s)
		}
		tok.RunID = runID
	default:
		return Token{}, errors.Wrapf(errors.ErrExpiredToken, "unknown verb %q", parts[1])
	}

	if tok.CycleID == "" {
		return Token{}, errors.Wrap(errors.ErrExpiredToken, "empty cycle id")
	}
	return tok, nil
}

// IsToken reports whether a callback payload looks like one of ours.
// Foreign payloads are ignored by the dispatch loop, never treated as errors.
func IsToken(s string) bool {
	return strings.HasPrefix(s, tokenPrefix+tokenSep)
}

func tokenAll(cycleID string) string     { return Token{Verb: VerbAll, CycleID: cycleID}.String() }
func tokenDecline(cycleID string) string { return Token{Verb: VerbDecline, CycleID: cycleID}.String() }
func tokenRun(cycleID string, runID int64) string {
	return Token{Verb: VerbRun, CycleID: cycleID, RunID: runID}.String()
}
