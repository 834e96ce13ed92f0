package core

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies a failure so callers can decide whether to abort, exclude an
// offending party, or retry with a new randomness source.
type Kind uint8

const (
	KindUnknown Kind = iota
	// KindConfiguration: invalid threshold or validator set; fatal, raised before any cryptographic work.
	KindConfiguration
	// KindVerification: bad transcript, bad decryption share, failed final decryption.
	KindVerification
	// KindResource: randomness source exhausted.
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindConfiguration:
		return "configuration"
	case KindVerification:
		return "verification"
	case KindResource:
		return "resource"
	}
	return "unknown"
}

var (
	ErrInvalidScalar = errors.New("invalid scalar")

	ErrInvalidThreshold       = errors.New("invalid threshold")
	ErrInvalidValidatorSet    = errors.New("invalid validator set")
	ErrNotAggregated          = errors.New("session not aggregated")
	ErrInsufficientRandomness = errors.New("insufficient randomness")
	ErrInvalidTranscript      = errors.New("invalid pvss transcript")
	ErrInsufficientDealers    = errors.New("insufficient transcripts for aggregate")
	ErrDuplicateDealer        = errors.New("duplicate dealer")
	ErrInvalidAggregate       = errors.New("invalid transcript aggregate")
	ErrStaleShare             = errors.New("stale private share")
	ErrInvalidDecryptionShare = errors.New("invalid decryption share")
	ErrInsufficientShares     = errors.New("insufficient decryption shares")
	ErrInvalidCiphertext      = errors.New("invalid ciphertext")
	ErrDecryptionFailed       = errors.New("decryption failed")
	ErrRecoveryFailed         = errors.New("share recovery failed")
)

// NoIndex marks an absent dealer or validator in Error.
const NoIndex = -1

// Error carries the failure kind, a sentinel code for errors.Is, and the
// offending dealer/validator when one is known. It never holds secret values.
type Error struct {
	Kind      Kind
	Code      error
	Dealer    int
	Validator int
	Err       error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Code != nil {
		b.WriteString(e.Code.Error())
	} else {
		b.WriteString(e.Kind.String() + " error")
	}
	if e.Dealer >= 0 {
		fmt.Fprintf(&b, " (dealer %d)", e.Dealer)
	}
	if e.Validator >= 0 {
		fmt.Fprintf(&b, " (validator %d)", e.Validator)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes the cause only. A single-error Unwrap keeps multierr from
// splitting one *Error into its parts.
func (e *Error) Unwrap() error { return e.Err }

// Is matches the sentinel code.
func (e *Error) Is(target error) bool { return e.Code != nil && e.Code == target }

func ConfigError(code error, cause error) *Error {
	return &Error{Kind: KindConfiguration, Code: code, Dealer: NoIndex, Validator: NoIndex, Err: cause}
}

func ResourceError(code error, cause error) *Error {
	return &Error{Kind: KindResource, Code: code, Dealer: NoIndex, Validator: NoIndex, Err: cause}
}

// VerifyError builds a verification failure; pass NoIndex for unknown parties.
func VerifyError(code error, dealer, validator int, cause error) *Error {
	return &Error{Kind: KindVerification, Code: code, Dealer: dealer, Validator: validator, Err: cause}
}

// KindOf returns the kind of the outermost *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
