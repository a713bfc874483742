package hydration

import (
	"errors"
	"fmt"
)

var (
	// ErrMappingIntegrity is matched by errors caused by a malformed result set mapping.
	ErrMappingIntegrity = errors.New("mapping integrity violation")
	// ErrUnknownDiscriminator is matched by errors for unmapped discriminator values.
	ErrUnknownDiscriminator = errors.New("unknown discriminator value")
	// ErrRunFinished is returned when rows are fed to a finished run.
	ErrRunFinished = errors.New("hydration run already finished")
)

// MappingIntegrityError reports a joined alias that cannot be attached to its parent.
type MappingIntegrityError struct {
	Alias       string
	ParentAlias string
	Row         int
	Reason      string
}

func (e *MappingIntegrityError) Error() string {
	if e.ParentAlias != "" {
		return fmt.Sprintf("hydration: row %d: alias %q: parent alias %q: %s", e.Row, e.Alias, e.ParentAlias, e.Reason)
	}
	return fmt.Sprintf("hydration: row %d: alias %q: %s", e.Row, e.Alias, e.Reason)
}

// Is reports whether target is ErrMappingIntegrity.
func (e *MappingIntegrityError) Is(target error) bool {
	return target == ErrMappingIntegrity
}

// UnknownDiscriminatorError reports a discriminator value missing from the
// class hierarchy's discriminator map.
type UnknownDiscriminatorError struct {
	Alias string
	Class string
	Value string
}

func (e *UnknownDiscriminatorError) Error() string {
	return fmt.Sprintf("hydration: alias %q: discriminator value %q is not mapped by class %q", e.Alias, e.Value, e.Class)
}

// Is reports whether target is ErrUnknownDiscriminator.
func (e *UnknownDiscriminatorError) Is(target error) bool {
	return target == ErrUnknownDiscriminator
}

// IsMappingIntegrity reports whether err is a mapping integrity error.
func IsMappingIntegrity(err error) bool {
	return errors.Is(err, ErrMappingIntegrity)
}

// IsUnknownDiscriminator reports whether err is an unknown discriminator error.
func IsUnknownDiscriminator(err error) bool {
	return errors.Is(err, ErrUnknownDiscriminator)
}
