// Package value defines the closed set of value variants a resource field can
// carry and the codec between those variants and their storable row shape.
// Every switch over Kind in this package is exhaustive: a new kind added to the
// enumeration without a matching case fails compilation or the codec tests,
// never silently drops data.
package value

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Kind discriminates the value variants. Exactly one payload is populated per
// value; a cleared field is represented by a value with Null set, which is
// distinct from the field never having been set at all.
type Kind int

const (
	KindString Kind = iota
	KindNumber
	KindBoolean
	KindDate
	KindOption
	KindOptionSet
	KindUser
	KindResource
	KindFile
	KindFileSet
	KindAddress
	KindContact
)

// String returns the string representation of the kind.
func (k Kind) String() string {
	switch k {
	case KindString:
		return "string"
	case KindNumber:
		return "number"
	case KindBoolean:
		return "boolean"
	case KindDate:
		return "date"
	case KindOption:
		return "option"
	case KindOptionSet:
		return "option_set"
	case KindUser:
		return "user"
	case KindResource:
		return "resource"
	case KindFile:
		return "file"
	case KindFileSet:
		return "file_set"
	case KindAddress:
		return "address"
	case KindContact:
		return "contact"
	default:
		return "unknown"
	}
}

// ParseKind converts a string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch s {
	case "string":
		return KindString, nil
	case "number":
		return KindNumber, nil
	case "boolean":
		return KindBoolean, nil
	case "date":
		return KindDate, nil
	case "option":
		return KindOption, nil
	case "option_set":
		return KindOptionSet, nil
	case "user":
		return KindUser, nil
	case "resource":
		return KindResource, nil
	case "file":
		return KindFile, nil
	case "file_set":
		return KindFileSet, nil
	case "address":
		return KindAddress, nil
	case "contact":
		return KindContact, nil
	default:
		return 0, fmt.Errorf("unknown value kind: %s", s)
	}
}

// Kinds returns every kind in declaration order.
func Kinds() []Kind {
	return []Kind{
		KindString, KindNumber, KindBoolean, KindDate,
		KindOption, KindOptionSet, KindUser, KindResource,
		KindFile, KindFileSet, KindAddress, KindContact,
	}
}

// Address is the payload of an address value: five nullable string sub-fields.
type Address struct {
	Line1 string `json:"line1"`
	Line2 string `json:"line2"`
	City  string `json:"city"`
	State string `json:"state"`
	Zip   string `json:"zip"`
}

// Contact is the payload of a contact value.
type Contact struct {
	Name  string `json:"name"`
	Email string `json:"email"`
	Phone string `json:"phone"`
	Title string `json:"title"`
}

// Value is a tagged variant. The payload matching Kind is the only one that is
// meaningful; Null marks an explicitly cleared value.
type Value struct {
	Kind Kind `json:"kind"`
	Null bool `json:"null,omitempty"`

	StringVal  string      `json:"string,omitempty"`
	NumberVal  float64     `json:"number,omitempty"`
	BoolVal    bool        `json:"boolean,omitempty"`
	DateVal    time.Time   `json:"date,omitempty"`
	OptionID   uuid.UUID   `json:"option_id,omitempty"`
	OptionIDs  []uuid.UUID `json:"option_ids,omitempty"`
	UserID     uuid.UUID   `json:"user_id,omitempty"`
	ResourceID uuid.UUID   `json:"resource_id,omitempty"`
	FileID     uuid.UUID   `json:"file_id,omitempty"`
	FileIDs    []uuid.UUID `json:"file_ids,omitempty"`
	AddressVal Address     `json:"address,omitempty"`
	ContactVal Contact     `json:"contact,omitempty"`
}

// String builds a string value.
func String(s string) Value { return Value{Kind: KindString, StringVal: s} }

// Number builds a number value.
func Number(n float64) Value { return Value{Kind: KindNumber, NumberVal: n} }

// Boolean builds a boolean value.
func Boolean(b bool) Value { return Value{Kind: KindBoolean, BoolVal: b} }

// Date builds a date value truncated to the day.
func Date(t time.Time) Value {
	y, m, d := t.Date()
	return Value{Kind: KindDate, DateVal: time.Date(y, m, d, 0, 0, 0, 0, time.UTC)}
}

// Option builds a single-option value.
func Option(id uuid.UUID) Value { return Value{Kind: KindOption, OptionID: id} }

// OptionSet builds a multi-option value.
func OptionSet(ids []uuid.UUID) Value { return Value{Kind: KindOptionSet, OptionIDs: ids} }

// User builds a user-reference value.
func User(id uuid.UUID) Value { return Value{Kind: KindUser, UserID: id} }

// Resource builds a resource-reference value.
func Resource(id uuid.UUID) Value { return Value{Kind: KindResource, ResourceID: id} }

// File builds a file value.
func File(id uuid.UUID) Value { return Value{Kind: KindFile, FileID: id} }

// FileSet builds a multi-file value.
func FileSet(ids []uuid.UUID) Value { return Value{Kind: KindFileSet, FileIDs: ids} }

// AddressOf builds an address value.
func AddressOf(a Address) Value { return Value{Kind: KindAddress, AddressVal: a} }

// ContactOf builds a contact value.
func ContactOf(c Contact) Value { return Value{Kind: KindContact, ContactVal: c} }

// Null builds an explicit cleared value of the given kind.
func Null(k Kind) Value { return Value{Kind: k, Null: true} }

// IsNull reports whether the value was explicitly cleared.
func (v Value) IsNull() bool { return v.Null }

// DateString returns the date payload formatted as YYYY-MM-DD.
func (v Value) DateString() string { return v.DateVal.Format("2006-01-02") }

// Equal reports whether two values are the same variant with the same payload.
// Used by the patch engine to drop no-op patches.
func (v Value) Equal(o Value) bool {
	if v.Kind != o.Kind || v.Null != o.Null {
		return false
	}
	if v.Null {
		return true
	}
	switch v.Kind {
	case KindString:
		return v.StringVal == o.StringVal
	case KindNumber:
		return v.NumberVal == o.NumberVal
	case KindBoolean:
		return v.BoolVal == o.BoolVal
	case KindDate:
		return v.DateVal.Equal(o.DateVal)
	case KindOption:
		return v.OptionID == o.OptionID
	case KindOptionSet:
		return equalIDs(v.OptionIDs, o.OptionIDs)
	case KindUser:
		return v.UserID == o.UserID
	case KindResource:
		return v.ResourceID == o.ResourceID
	case KindFile:
		return v.FileID == o.FileID
	case KindFileSet:
		return equalIDs(v.FileIDs, o.FileIDs)
	case KindAddress:
		return v.AddressVal == o.AddressVal
	case KindContact:
		return v.ContactVal == o.ContactVal
	default:
		return false
	}
}

func equalIDs(a, b []uuid.UUID) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
