package packet

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBody_Defaults(t *testing.T) {
	b := NewBody()

	assert.Equal(t, "", b.GetString("missing"))
	assert.Equal(t, -1, b.GetInt("missing"))
	assert.Equal(t, int64(-1), b.GetLong("missing"))
	assert.False(t, b.GetBool("missing"))
	assert.True(t, math.IsNaN(b.GetDouble("missing")))
	assert.Nil(t, b.GetStringList("missing"))
	assert.Nil(t, b.GetStringSet("missing"))

	assert.Equal(t, "def", b.GetStringOr("missing", "def"))
	assert.Equal(t, 7, b.GetIntOr("missing", 7))
	assert.True(t, b.GetBoolOr("missing", true))
}

func TestBody_LookupDistinguishesAbsence(t *testing.T) {
	b := NewBody()
	b.SetInt("minusOne", -1)
	b.SetBool("no", false)

	i, ok := b.LookupInt("minusOne")
	assert.True(t, ok)
	assert.Equal(t, -1, i)

	_, ok = b.LookupInt("absent")
	assert.False(t, ok)

	v, ok := b.LookupBool("no")
	assert.True(t, ok)
	assert.False(t, v)

	_, ok = b.LookupBool("absent")
	assert.False(t, ok)

	_, ok = b.LookupDouble("absent")
	assert.False(t, ok)

	_, ok = b.LookupString("absent")
	assert.False(t, ok)
}

func TestBody_Conversions(t *testing.T) {
	b := NewBody()
	b.SetString("num", "12")
	b.SetString("flag", "true")
	b.SetDouble("pi", 3.9)
	b.SetInt("n", 5)

	assert.Equal(t, 12, b.GetInt("num"))
	assert.True(t, b.GetBool("flag"))
	assert.Equal(t, 3, b.GetInt("pi"))
	assert.Equal(t, 5.0, b.GetDouble("n"))
	assert.Equal(t, "5", b.GetString("n"))
	assert.False(t, b.GetBool("n"))
}

func TestBody_OrderPreserved(t *testing.T) {
	b := NewBody()
	b.SetString("z", "1")
	b.SetString("a", "2")
	b.SetString("m", "3")
	b.SetString("z", "overwritten")

	assert.Equal(t, []string{"z", "a", "m"}, b.Keys())

	data, err := json.Marshal(b)
	require.NoError(t, err)
	assert.Equal(t, `{"z":"overwritten","a":"2","m":"3"}`, string(data))

	var decoded Body
	require.NoError(t, json.Unmarshal([]byte(`{"b":1,"a":2,"c":3}`), &decoded))
	assert.Equal(t, []string{"b", "a", "c"}, decoded.Keys())

	b.Delete("a")
	assert.Equal(t, []string{"z", "m"}, b.Keys())
	b.Delete("nope")
	assert.Equal(t, 2, b.Len())
}

func TestBody_StringSet(t *testing.T) {
	b := NewBody()
	b.SetStringSet("set", map[string]struct{}{"b": {}, "a": {}})

	assert.Equal(t, []string{"a", "b"}, b.GetStringList("set"))
	set := b.GetStringSet("set")
	assert.Len(t, set, 2)
	assert.Contains(t, set, "a")

	b.SetString("notJSON", "plain")
	assert.Nil(t, b.GetStringList("notJSON"))

	b.SetStringList("empty", nil)
	list, ok := b.LookupStringList("empty")
	assert.True(t, ok)
	assert.Empty(t, list)
}

func TestBody_CloneIsIndependent(t *testing.T) {
	b := NewBody()
	b.SetString("k", "v")
	c := b.Clone()
	c.SetString("k", "changed")

	assert.Equal(t, "v", b.GetString("k"))
	assert.False(t, b.Equal(c))
}

func TestNilBodyIsSafe(t *testing.T) {
	var b *Body
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, -1, b.GetInt("x"))
	assert.False(t, b.Has("x"))
}
