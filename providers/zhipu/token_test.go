package zhipu

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/amul-dhungel/Deepwork/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func decodeSegment(t *testing.T, seg string) map[string]any {
	t.Helper()
	raw, err := base64.RawURLEncoding.DecodeString(seg)
	require.NoError(t, err)
	var m map[string]any
	require.NoError(t, json.Unmarshal(raw, &m))
	return m
}

func TestSignTokenShape(t *testing.T) {
	now := time.UnixMilli(1_700_000_000_000)
	token, err := signTokenAt("abc.def", time.Hour, now)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	header := decodeSegment(t, parts[0])
	assert.Equal(t, "HS256", header["alg"])
	assert.Equal(t, "SIGN", header["sign_type"])
	assert.NotContains(t, header, "typ")

	claims := decodeSegment(t, parts[1])
	assert.Equal(t, "abc", claims["api_key"])
	assert.Equal(t, float64(1_700_000_000_000), claims["timestamp"])
	assert.Equal(t, float64(1_700_000_000_000+time.Hour.Milliseconds()), claims["exp"])
}

func TestSignTokenSignatureVerifies(t *testing.T) {
	token, err := signTokenAt("abc.def", time.Hour, time.UnixMilli(1_700_000_000_000))
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)

	mac := hmac.New(sha256.New, []byte("def"))
	mac.Write([]byte(parts[0] + "." + parts[1]))
	want := base64.RawURLEncoding.EncodeToString(mac.Sum(nil))
	assert.Equal(t, want, parts[2], "signature must verify against the secret half of the key")
}

func TestSignTokenFreshTimestamps(t *testing.T) {
	t1, err := signTokenAt("abc.def", time.Hour, time.UnixMilli(1_700_000_000_000))
	require.NoError(t, err)
	t2, err := signTokenAt("abc.def", time.Hour, time.UnixMilli(1_700_000_000_500))
	require.NoError(t, err)
	assert.NotEqual(t, t1, t2, "tokens signed at different instants must differ")
}

func TestSignTokenInvalidKey(t *testing.T) {
	for _, key := range []string{"", "nodot", "a.b.c", ".secret", "id."} {
		t.Run(key, func(t *testing.T) {
			_, err := SignToken(key, time.Hour)
			require.Error(t, err)
			assert.Equal(t, types.ErrInvalidRequest, types.GetErrorCode(err))
		})
	}
}
