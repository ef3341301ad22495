package packet

import (
	"bytes"
	"math"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dep2p/go-lanconnect/pkg/types"
)

func TestSerialize_KeyOrderAndNewline(t *testing.T) {
	p := &Packet{ID: 42, Type: "kdeconnect.ping", Body: NewBody()}
	p.Body.SetString("message", "hello")

	data, err := Serialize(p)
	require.NoError(t, err)

	assert.Equal(t, `{"id":42,"type":"kdeconnect.ping","body":{"message":"hello"}}`+"\n", string(data))
	assert.Equal(t, 1, bytes.Count(data, []byte{'\n'}))
}

func TestSerialize_NoEscapedSlash(t *testing.T) {
	p := New("kdeconnect.share.request")
	p.Body.SetString("url", "https://kde.org/applications/")
	p.Body.SetString("html", "<a href=\"x\">&</a>")
	p.Body.SetStringList("paths", []string{"/sdcard/DCIM", "/tmp"})

	data, err := Serialize(p)
	require.NoError(t, err)

	assert.NotContains(t, string(data), `\/`)
	assert.Contains(t, string(data), "https://kde.org/applications/")
	assert.Contains(t, string(data), `"paths":["/sdcard/DCIM","/tmp"]`)
	assert.Contains(t, string(data), "<a href")
}

func TestSerialize_OptionalPayloadFields(t *testing.T) {
	p := &Packet{ID: 1, Type: "kdeconnect.share.request", Body: NewBody()}
	p.PayloadTransferInfo = NewBody()

	data, err := Serialize(p)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "payloadSize")
	assert.NotContains(t, string(data), "payloadTransferInfo", "empty transfer info must be omitted")

	p.SetPayloadSize(1024)
	p.PayloadTransferInfo.SetInt("port", 1739)
	data, err = Serialize(p)
	require.NoError(t, err)
	assert.Equal(t,
		`{"id":1,"type":"kdeconnect.share.request","body":{},"payloadSize":1024,"payloadTransferInfo":{"port":1739}}`+"\n",
		string(data))
}

func TestSerialize_ZeroIDUsesCurrentTime(t *testing.T) {
	old := nowMillis
	nowMillis = func() int64 { return 1700000000000 }
	defer func() { nowMillis = old }()

	data, err := Serialize(&Packet{Type: "kdeconnect.ping"})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(string(data), `{"id":1700000000000,`))
	assert.Contains(t, string(data), `"body":{}`)
}

func TestSerialize_Errors(t *testing.T) {
	_, err := Serialize(nil)
	assert.Error(t, err)

	_, err = Serialize(&Packet{ID: 1})
	assert.Error(t, err)

	p := New("kdeconnect.x")
	p.Body.SetDouble("bad", math.NaN())
	_, err = Serialize(p)
	assert.Error(t, err)
}

func TestRoundTrip(t *testing.T) {
	p := New("kdeconnect.battery")
	p.Body.SetInt("currentCharge", 87)
	p.Body.SetLong("big", math.MaxInt64)
	p.Body.SetBool("isCharging", true)
	p.Body.SetDouble("temperature", 31.5)
	p.Body.SetDouble("integral", 2)
	p.Body.SetString("path", "/a/b")
	p.Body.SetString("empty", "")
	p.Body.SetStringList("caps", []string{"kdeconnect.ping"})

	data, err := Serialize(p)
	require.NoError(t, err)

	got, err := Deserialize(data)
	require.NoError(t, err)

	assert.Equal(t, p.ID, got.ID)
	assert.Equal(t, p.Type, got.Type)
	assert.True(t, p.Body.Equal(got.Body), "body mismatch: %s", data)
	assert.Equal(t, p.Body.Keys(), got.Body.Keys())

	v, ok := got.Body.Get("integral")
	require.True(t, ok)
	assert.Equal(t, KindDouble, v.Kind())
}

func TestDeserialize_LegacyNamespace(t *testing.T) {
	got, err := Deserialize([]byte(`{"id":5,"type":"org.kde.kdeconnect.ping","body":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "kdeconnect.ping", got.Type)

	got, err = Deserialize([]byte(`{"id":5,"type":"kdeconnect.ping","body":{}}`))
	require.NoError(t, err)
	assert.Equal(t, "kdeconnect.ping", got.Type)
}

func TestDeserialize_Errors(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{"empty", ""},
		{"malformed", `{"id":1,"type":`},
		{"missing type", `{"id":1,"body":{}}`},
		{"missing id", `{"type":"kdeconnect.ping","body":{}}`},
		{"null id", `{"id":null,"type":"kdeconnect.ping"}`},
		{"body not object", `{"id":1,"type":"kdeconnect.ping","body":[1]}`},
		{"trailing garbage", `{"id":1,"type":"kdeconnect.ping"} x`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize([]byte(tt.input))
			require.Error(t, err)
			assert.ErrorIs(t, err, types.ErrParse)
		})
	}
}

func TestDeserialize_StringIDAndNestedValues(t *testing.T) {
	got, err := Deserialize([]byte(`{"id":"77","type":"kdeconnect.identity","body":{"incomingCapabilities":["kdeconnect.ping", "kdeconnect.share\/x"],"skip":null,"obj":{"a":1}},"payloadSize":10}` + "\n"))
	require.NoError(t, err)

	assert.Equal(t, int64(77), got.ID)
	assert.Equal(t, []string{"kdeconnect.ping", "kdeconnect.share/x"}, got.Body.GetStringList("incomingCapabilities"))
	assert.False(t, got.Body.Has("skip"))
	assert.Equal(t, `{"a":1}`, got.Body.GetString("obj"))

	size, ok := got.PayloadSize()
	assert.True(t, ok)
	assert.Equal(t, int64(10), size)
	assert.True(t, got.HasPayload())

	data, err := Serialize(got)
	require.NoError(t, err)
	assert.NotContains(t, string(data), `\/`)
}

func TestPacketSet(t *testing.T) {
	p := New("kdeconnect.x")
	require.NoError(t, p.Set("s", "v"))
	require.NoError(t, p.Set("i", 3))
	require.NoError(t, p.Set("l", int64(4)))
	require.NoError(t, p.Set("b", true))
	require.NoError(t, p.Set("d", 1.5))
	require.NoError(t, p.Set("list", []string{"a"}))
	assert.Error(t, p.Set("bad", struct{}{}))

	assert.Equal(t, "v", p.GetString("s"))
	assert.Equal(t, 3, p.GetInt("i"))
	assert.Equal(t, int64(4), p.GetLong("l"))
	assert.True(t, p.GetBool("b"))
	assert.Equal(t, 1.5, p.GetDouble("d"))
}
