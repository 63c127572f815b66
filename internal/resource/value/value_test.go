package value

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// sampleFor returns a populated value for every kind. Kept in one place so the
// round-trip test below covers the whole enumeration.
func sampleFor(t *testing.T, k Kind) Value {
	t.Helper()
	id := uuid.MustParse("11111111-2222-3333-4444-555555555555")
	id2 := uuid.MustParse("66666666-7777-8888-9999-aaaaaaaaaaaa")
	switch k {
	case KindString:
		return String("ACME Corp")
	case KindNumber:
		return Number(42.5)
	case KindBoolean:
		return Boolean(true)
	case KindDate:
		return Date(time.Date(2024, 3, 15, 13, 45, 0, 0, time.UTC))
	case KindOption:
		return Option(id)
	case KindOptionSet:
		return OptionSet([]uuid.UUID{id, id2})
	case KindUser:
		return User(id)
	case KindResource:
		return Resource(id)
	case KindFile:
		return File(id)
	case KindFileSet:
		return FileSet([]uuid.UUID{id2})
	case KindAddress:
		return AddressOf(Address{Line1: "1 Main St", City: "Springfield", State: "IL", Zip: "62701"})
	case KindContact:
		return ContactOf(Contact{Name: "Pat Lee", Email: "pat@example.com", Phone: "5551234567"})
	default:
		t.Fatalf("no sample for kind %d", k)
		return Value{}
	}
}

func TestKindStringParseRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		parsed, err := ParseKind(k.String())
		require.NoError(t, err, "kind %s", k)
		assert.Equal(t, k, parsed)
	}

	_, err := ParseKind("bogus")
	assert.Error(t, err)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	for _, k := range Kinds() {
		v := sampleFor(t, k)

		row, err := Encode(v)
		require.NoError(t, err, "encode %s", k)
		assert.False(t, row.IsNull)

		got, err := Decode(k, row)
		require.NoError(t, err, "decode %s", k)
		assert.True(t, v.Equal(got), "round trip mismatch for %s", k)
	}
}

func TestEncodeDecodeNull(t *testing.T) {
	for _, k := range Kinds() {
		row, err := Encode(Null(k))
		require.NoError(t, err)
		assert.True(t, row.IsNull)

		got, err := Decode(k, row)
		require.NoError(t, err)
		assert.True(t, got.IsNull())
		assert.Equal(t, k, got.Kind)
	}
}

func TestColumnCoversEveryKind(t *testing.T) {
	for _, k := range Kinds() {
		assert.NotEmpty(t, Column(k), "kind %s has no typed column", k)
	}
}

func TestDateTruncatesToDay(t *testing.T) {
	v := Date(time.Date(2024, 7, 4, 23, 59, 59, 0, time.UTC))
	assert.Equal(t, "2024-07-04", v.DateString())
	assert.Equal(t, 0, v.DateVal.Hour())
}

func TestEqual(t *testing.T) {
	assert.True(t, String("a").Equal(String("a")))
	assert.False(t, String("a").Equal(String("b")))
	assert.False(t, String("a").Equal(Number(1)))
	assert.True(t, Null(KindString).Equal(Null(KindString)))
	assert.False(t, Null(KindString).Equal(String("")))
	assert.False(t, Null(KindString).Equal(Null(KindNumber)))

	id := uuid.New()
	id2 := uuid.New()
	assert.True(t, OptionSet([]uuid.UUID{id, id2}).Equal(OptionSet([]uuid.UUID{id, id2})))
	assert.False(t, OptionSet([]uuid.UUID{id}).Equal(OptionSet([]uuid.UUID{id2})))
}

func TestDecodeMissingPayload(t *testing.T) {
	_, err := Decode(KindString, Row{})
	assert.Error(t, err)

	_, err = Decode(KindOption, Row{})
	assert.Error(t, err)
}
