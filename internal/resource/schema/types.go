// Package schema defines per-account, user-customizable schemas: ordered
// sections of typed fields governing one resource type, plus reference
// resolution by tenant id or stable template id.
package schema

import (
	"fmt"

	"github.com/procura-hq/procura/internal/resource/value"
)

// FieldType enumerates the closed set of field types a schema may declare.
type FieldType int

const (
	FieldText FieldType = iota
	FieldTextarea
	FieldNumber
	FieldMoney
	FieldCheckbox
	FieldDate
	FieldSelect
	FieldMultiSelect
	FieldUser
	FieldResource
	FieldFile
	FieldFiles
	FieldAddress
	FieldContact
)

// String returns the string representation of the field type.
func (t FieldType) String() string {
	switch t {
	case FieldText:
		return "text"
	case FieldTextarea:
		return "textarea"
	case FieldNumber:
		return "number"
	case FieldMoney:
		return "money"
	case FieldCheckbox:
		return "checkbox"
	case FieldDate:
		return "date"
	case FieldSelect:
		return "select"
	case FieldMultiSelect:
		return "multi_select"
	case FieldUser:
		return "user"
	case FieldResource:
		return "resource"
	case FieldFile:
		return "file"
	case FieldFiles:
		return "files"
	case FieldAddress:
		return "address"
	case FieldContact:
		return "contact"
	default:
		return "unknown"
	}
}

// ParseFieldType converts a string to a FieldType.
func ParseFieldType(s string) (FieldType, error) {
	switch s {
	case "text":
		return FieldText, nil
	case "textarea":
		return FieldTextarea, nil
	case "number":
		return FieldNumber, nil
	case "money":
		return FieldMoney, nil
	case "checkbox":
		return FieldCheckbox, nil
	case "date":
		return FieldDate, nil
	case "select":
		return FieldSelect, nil
	case "multi_select":
		return FieldMultiSelect, nil
	case "user":
		return FieldUser, nil
	case "resource":
		return FieldResource, nil
	case "file":
		return FieldFile, nil
	case "files":
		return FieldFiles, nil
	case "address":
		return FieldAddress, nil
	case "contact":
		return FieldContact, nil
	default:
		return 0, fmt.Errorf("unknown field type: %s", s)
	}
}

// FieldTypes returns every field type in declaration order.
func FieldTypes() []FieldType {
	return []FieldType{
		FieldText, FieldTextarea, FieldNumber, FieldMoney,
		FieldCheckbox, FieldDate, FieldSelect, FieldMultiSelect,
		FieldUser, FieldResource, FieldFile, FieldFiles,
		FieldAddress, FieldContact,
	}
}

// Kind returns the value variant a field of this type carries. The mapping is
// one-to-one from the field's perspective: a stored value whose kind differs
// from the field type's kind is rejected at write time.
func (t FieldType) Kind() value.Kind {
	switch t {
	case FieldText, FieldTextarea:
		return value.KindString
	case FieldNumber, FieldMoney:
		return value.KindNumber
	case FieldCheckbox:
		return value.KindBoolean
	case FieldDate:
		return value.KindDate
	case FieldSelect:
		return value.KindOption
	case FieldMultiSelect:
		return value.KindOptionSet
	case FieldUser:
		return value.KindUser
	case FieldResource:
		return value.KindResource
	case FieldFile:
		return value.KindFile
	case FieldFiles:
		return value.KindFileSet
	case FieldAddress:
		return value.KindAddress
	case FieldContact:
		return value.KindContact
	default:
		return value.KindString
	}
}

// HasOptions reports whether the field type is enumerated.
func (t FieldType) HasOptions() bool {
	return t == FieldSelect || t == FieldMultiSelect
}
