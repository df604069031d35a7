package shared

import (
	"database/sql/driver"
	"fmt"

	"github.com/google/uuid"
)

// ID is the opaque identifier for runs, configurations, issues and
// discovered entities. Backed by a v4 UUID.
type ID struct {
	value uuid.UUID
}

// NewID generates a fresh random ID.
func NewID() ID {
	return ID{value: uuid.New()}
}

// IDFromString parses a canonical UUID string into an ID.
func IDFromString(s string) (ID, error) {
	parsed, err := uuid.Parse(s)
	if err != nil {
		return ID{}, fmt.Errorf("invalid id %q: %w", s, err)
	}
	return ID{value: parsed}, nil
}

// MustIDFromString parses s and panics on failure. For tests and
// static wiring only.
func MustIDFromString(s string) ID {
	id, err := IDFromString(s)
	if err != nil {
		panic(err)
	}
	return id
}

func (id ID) String() string { return id.value.String() }

// IsZero reports whether the ID is the zero value.
func (id ID) IsZero() bool { return id.value == uuid.Nil }

// Equals reports whether two IDs identify the same entity.
func (id ID) Equals(other ID) bool { return id.value == other.value }

// Value implements driver.Valuer. IDs are stored as their canonical
// string form.
func (id ID) Value() (driver.Value, error) {
	return id.value.String(), nil
}

// Scan implements sql.Scanner for both text and byte column types.
func (id *ID) Scan(src any) error {
	switch v := src.(type) {
	case string:
		parsed, err := uuid.Parse(v)
		if err != nil {
			return fmt.Errorf("scan id: %w", err)
		}
		id.value = parsed
		return nil
	case []byte:
		parsed, err := uuid.ParseBytes(v)
		if err != nil {
			return fmt.Errorf("scan id: %w", err)
		}
		id.value = parsed
		return nil
	default:
		return fmt.Errorf("cannot scan %T into ID", src)
	}
}

// MarshalText implements encoding.TextMarshaler, which also covers
// JSON encoding.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.value.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(data []byte) error {
	parsed, err := uuid.ParseBytes(data)
	if err != nil {
		return fmt.Errorf("invalid id %q: %w", data, err)
	}
	id.value = parsed
	return nil
}
