package typetag

import (
	"errors"
	"strings"
	"testing"

	"github.com/alanyoungcy/sudomarket/internal/bcs"
	"github.com/alanyoungcy/sudomarket/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const suiFull = "0x0000000000000000000000000000000000000000000000000000000000000002::sui::SUI"

func TestParseStructShortAddress(t *testing.T) {
	tag, err := Parse("0x2::sui::SUI")
	require.NoError(t, err)
	assert.Equal(t, Struct, tag.Kind)
	assert.Equal(t, suiFull, tag.String())
	assert.Equal(t, strings.TrimPrefix(suiFull, "0x"), tag.Canonical())
}

func TestParseNested(t *testing.T) {
	s := "0xabc::market::PositionName<0x2::sui::SUI, 0xdef::coin::USDC, 0xabc::market::LONG>"
	st, err := ParseStruct(s)
	require.NoError(t, err)
	assert.True(t, st.Is("market", "PositionName"))
	require.Len(t, st.Params, 3)
	assert.True(t, st.Params[2].Struct.Is("market", "LONG"))
	assert.Equal(t, "coin", st.Params[1].Struct.Module)
}

func TestParsePrimitivesAndVector(t *testing.T) {
	tag, err := Parse("vector<vector<u8>>")
	require.NoError(t, err)
	assert.Equal(t, Vector, tag.Kind)
	assert.Equal(t, "vector<vector<u8>>", tag.String())

	for _, s := range []string{"bool", "u8", "u16", "u32", "u64", "u128", "u256", "address", "signer"} {
		tag, err := Parse(s)
		require.NoError(t, err, s)
		assert.Equal(t, s, tag.String())
	}
}

func TestParseErrors(t *testing.T) {
	for _, s := range []string{"", "0x2::sui", "0x2::sui::SUI<", "vector<u8", "zz::a::B", "0x2::sui::SUI extra"} {
		_, err := Parse(s)
		require.Error(t, err, s)
		assert.True(t, errors.Is(err, domain.ErrParse), s)
	}
	_, err := ParseStruct("u64")
	assert.True(t, errors.Is(err, domain.ErrParse))
}

func TestEqualIgnoresAddressForm(t *testing.T) {
	assert.True(t, Equal("0x2::sui::SUI", strings.TrimPrefix(suiFull, "0x")))
	assert.False(t, Equal("0x2::sui::SUI", "0x2::coin::SUI"))
	assert.False(t, Equal("0x2::sui::SUI", "not a type"))
}

func TestEncodeStruct(t *testing.T) {
	w := bcs.NewWriter()
	MustParse("0x2::sui::SUI").Encode(w)
	buf, err := w.Result()
	require.NoError(t, err)

	require.Len(t, buf, 1+32+1+3+1+3+1)
	assert.Equal(t, byte(Struct), buf[0])
	assert.Equal(t, byte(2), buf[32])
	assert.Equal(t, []byte{3, 's', 'u', 'i'}, buf[33:37])
	assert.Equal(t, byte(0), buf[len(buf)-1])
}

func TestNormalizeAddress(t *testing.T) {
	got, err := NormalizeAddress("0x6")
	require.NoError(t, err)
	assert.Equal(t, "0x0000000000000000000000000000000000000000000000000000000000000006", got)

	_, err = NormalizeAddress("0x" + strings.Repeat("a", 65))
	assert.Error(t, err)
}
