package otpcode

import "errors"

var (
	// ErrInvalidSecret is reported when a secret is not valid base32.  It is
	// permanent for a given secret: retrying will not succeed.
	ErrInvalidSecret = errors.New("invalid secret")

	// ErrUnableToGenerate is reported when a code cannot be computed from an
	// otherwise valid secret, for example because the algorithm is not
	// supported or the parameters are out of range.
	ErrUnableToGenerate = errors.New("unable to generate code")

	// ErrUnrecognized is reported for any failure not covered by the other
	// kinds.
	ErrUnrecognized = errors.New("unrecognized error")
)

// Kind classifies err as one of ErrInvalidSecret, ErrUnableToGenerate, or
// ErrUnrecognized. If err == nil, Kind returns nil.
func Kind(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrInvalidSecret):
		return ErrInvalidSecret
	case errors.Is(err, ErrUnableToGenerate):
		return ErrUnableToGenerate
	default:
		return ErrUnrecognized
	}
}
