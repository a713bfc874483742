package schemasource

import (
	"errors"
	"fmt"
)

var (
	// ErrSchemaSource is matched by every error raised while loading a snapshot.
	ErrSchemaSource = errors.New("schema source error")
	// ErrSourceNotFound is matched when a location holds no loadable schema.
	ErrSourceNotFound = errors.New("schema source not found")
)

// SourceError wraps a failure to load the snapshot at Location.
type SourceError struct {
	Location string
	Err      error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("schema source %q: %v", e.Location, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}

// Is reports whether target is ErrSchemaSource.
func (e *SourceError) Is(target error) bool {
	return target == ErrSchemaSource
}

// NotFoundError reports a location without any schema document.
type NotFoundError struct {
	Path string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("no schema documents found at %s", e.Path)
}

// Is reports whether target is ErrSourceNotFound or ErrSchemaSource.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrSourceNotFound || target == ErrSchemaSource
}

func wrap(location string, err error) error {
	if err == nil {
		return nil
	}
	var se *SourceError
	if errors.As(err, &se) {
		return err
	}
	return &SourceError{Location: location, Err: err}
}

// IsNotFound reports whether err is a missing source error.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrSourceNotFound)
}

// IsSourceError reports whether err came from loading a schema source.
func IsSourceError(err error) bool {
	return errors.Is(err, ErrSchemaSource)
}
