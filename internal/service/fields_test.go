package service

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/sudomarket/internal/domain"
)

func TestMoveFieldsNumbers(t *testing.T) {
	f := newMoveFields([]byte(`{
		"a": "12",
		"b": 34,
		"c": {"type": "x::decimal::Decimal", "fields": {"value": "5"}},
		"d": {"fields": {"value": {"fields": {"value": "6"}}}}
	}`), "root")

	assert.Equal(t, uint64(12), f.U64("a"))
	assert.Equal(t, uint64(34), f.U64("b"))
	assert.Equal(t, "5", f.Decimal("c").Text())
	assert.Equal(t, "6", f.Decimal("d").Text())
	require.NoError(t, f.Err())
}

func TestMoveFieldsNestedErrorReachesRoot(t *testing.T) {
	root := newMoveFields([]byte(`{"value": {"fields": {"x": "1"}}}`), "position")
	v := root.Struct("value")
	assert.Equal(t, uint64(1), v.U64("x"))
	v.U64("missing")

	err := root.Err()
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrParse)
	var pe *domain.ParseError
	require.ErrorAs(t, err, &pe)
	assert.Equal(t, "position.value.fields.missing", pe.Path)
}

func TestMoveFieldsFirstErrorSticks(t *testing.T) {
	f := newMoveFields([]byte(`{"a": true, "b": "x"}`), "r")
	f.U64("a")
	f.U64("b")
	var pe *domain.ParseError
	require.ErrorAs(t, f.Err(), &pe)
	assert.Equal(t, "r.a", pe.Path)
}

func TestMoveFieldsOptionalAndSigned(t *testing.T) {
	f := newMoveFields([]byte(`{
		"none": null,
		"some": "0x1",
		"s": {"fields": {"is_positive": false, "value": {"fields": {"value": "9"}}}},
		"uid": {"id": "0xabc"}
	}`), "r")
	assert.Equal(t, "", f.OptionalStr("none"))
	assert.Equal(t, "", f.OptionalStr("absent"))
	assert.Equal(t, "0x1", f.OptionalStr("some"))
	s := f.Signed("s")
	assert.False(t, s.Positive)
	assert.Equal(t, "9", s.Magnitude.Text())
	assert.Equal(t, "0xabc", f.UID("uid"))
	require.NoError(t, f.Err())
}

func TestMoveFieldsNotAnObject(t *testing.T) {
	f := newMoveFields([]byte(`[1,2]`), "r")
	assert.ErrorIs(t, f.Err(), domain.ErrParse)
	assert.Equal(t, uint64(0), f.U64("a"))
}
