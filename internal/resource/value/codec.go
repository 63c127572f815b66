package value

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Row is the storable shape of a single value occurrence: one nullable column
// per distinguishable payload kind, matching the field_values table.
type Row struct {
	ID        uuid.UUID
	FieldID   uuid.UUID
	CreatedAt time.Time
	IsNull    bool

	StringValue   sql.NullString
	NumberValue   sql.NullFloat64
	BooleanValue  sql.NullBool
	DateValue     sql.NullTime
	OptionID      uuid.NullUUID
	OptionIDs     []uuid.UUID
	UserID        uuid.NullUUID
	ResourceRefID uuid.NullUUID
	FileID        uuid.NullUUID
	FileIDs       []uuid.UUID
	Address       []byte // JSON-encoded Address
	Contact       []byte // JSON-encoded Contact
}

// Encode maps a value onto its row shape. The switch is exhaustive over Kind.
func Encode(v Value) (Row, error) {
	r := Row{IsNull: v.Null}
	if v.Null {
		return r, nil
	}
	switch v.Kind {
	case KindString:
		r.StringValue = sql.NullString{String: v.StringVal, Valid: true}
	case KindNumber:
		r.NumberValue = sql.NullFloat64{Float64: v.NumberVal, Valid: true}
	case KindBoolean:
		r.BooleanValue = sql.NullBool{Bool: v.BoolVal, Valid: true}
	case KindDate:
		r.DateValue = sql.NullTime{Time: v.DateVal, Valid: true}
	case KindOption:
		r.OptionID = uuid.NullUUID{UUID: v.OptionID, Valid: true}
	case KindOptionSet:
		r.OptionIDs = v.OptionIDs
	case KindUser:
		r.UserID = uuid.NullUUID{UUID: v.UserID, Valid: true}
	case KindResource:
		r.ResourceRefID = uuid.NullUUID{UUID: v.ResourceID, Valid: true}
	case KindFile:
		r.FileID = uuid.NullUUID{UUID: v.FileID, Valid: true}
	case KindFileSet:
		r.FileIDs = v.FileIDs
	case KindAddress:
		b, err := json.Marshal(v.AddressVal)
		if err != nil {
			return Row{}, fmt.Errorf("failed to encode address value: %w", err)
		}
		r.Address = b
	case KindContact:
		b, err := json.Marshal(v.ContactVal)
		if err != nil {
			return Row{}, fmt.Errorf("failed to encode contact value: %w", err)
		}
		r.Contact = b
	default:
		return Row{}, fmt.Errorf("cannot encode value of unknown kind %d", v.Kind)
	}
	return r, nil
}

// Decode materializes a value of the given kind from its row shape. The kind
// comes from the field definition, not from the row: the schema is the source
// of truth for how a stored occurrence is interpreted.
func Decode(k Kind, r Row) (Value, error) {
	if r.IsNull {
		return Null(k), nil
	}
	switch k {
	case KindString:
		if !r.StringValue.Valid {
			return Value{}, decodeErr(k, "string_value")
		}
		return String(r.StringValue.String), nil
	case KindNumber:
		if !r.NumberValue.Valid {
			return Value{}, decodeErr(k, "number_value")
		}
		return Number(r.NumberValue.Float64), nil
	case KindBoolean:
		if !r.BooleanValue.Valid {
			return Value{}, decodeErr(k, "boolean_value")
		}
		return Boolean(r.BooleanValue.Bool), nil
	case KindDate:
		if !r.DateValue.Valid {
			return Value{}, decodeErr(k, "date_value")
		}
		return Date(r.DateValue.Time), nil
	case KindOption:
		if !r.OptionID.Valid {
			return Value{}, decodeErr(k, "option_id")
		}
		return Option(r.OptionID.UUID), nil
	case KindOptionSet:
		return OptionSet(r.OptionIDs), nil
	case KindUser:
		if !r.UserID.Valid {
			return Value{}, decodeErr(k, "user_id")
		}
		return User(r.UserID.UUID), nil
	case KindResource:
		if !r.ResourceRefID.Valid {
			return Value{}, decodeErr(k, "resource_ref_id")
		}
		return Resource(r.ResourceRefID.UUID), nil
	case KindFile:
		if !r.FileID.Valid {
			return Value{}, decodeErr(k, "file_id")
		}
		return File(r.FileID.UUID), nil
	case KindFileSet:
		return FileSet(r.FileIDs), nil
	case KindAddress:
		var a Address
		if err := json.Unmarshal(r.Address, &a); err != nil {
			return Value{}, fmt.Errorf("failed to decode address value: %w", err)
		}
		return AddressOf(a), nil
	case KindContact:
		var c Contact
		if err := json.Unmarshal(r.Contact, &c); err != nil {
			return Value{}, fmt.Errorf("failed to decode contact value: %w", err)
		}
		return ContactOf(c), nil
	default:
		return Value{}, fmt.Errorf("cannot decode value of unknown kind %d", k)
	}
}

// Column returns the typed field_values column the query compiler predicates
// against for the given kind.
func Column(k Kind) string {
	switch k {
	case KindString:
		return "string_value"
	case KindNumber:
		return "number_value"
	case KindBoolean:
		return "boolean_value"
	case KindDate:
		return "date_value"
	case KindOption:
		return "option_id"
	case KindOptionSet:
		return "option_ids"
	case KindUser:
		return "user_id"
	case KindResource:
		return "resource_ref_id"
	case KindFile:
		return "file_id"
	case KindFileSet:
		return "file_ids"
	case KindAddress:
		return "address"
	case KindContact:
		return "contact"
	default:
		return ""
	}
}

func decodeErr(k Kind, column string) error {
	return fmt.Errorf("stored %s value has no %s payload", k, column)
}
