package local

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/chirino/solace-bridge/internal/config"
	"github.com/chirino/solace-bridge/internal/registry/keywrap"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, 32)
	_, err := rand.Read(key)
	require.NoError(t, err)
	return key
}

func TestDecodeKey(t *testing.T) {
	key := testKey(t)

	decoded, err := DecodeKey(hex.EncodeToString(key))
	require.NoError(t, err)
	require.Equal(t, key, decoded)

	decoded, err = DecodeKey(base64.StdEncoding.EncodeToString(key))
	require.NoError(t, err)
	require.Equal(t, key, decoded)

	_, err = DecodeKey("")
	require.Error(t, err)

	_, err = DecodeKey("not a key at all !!!")
	require.Error(t, err)

	// Valid hex, wrong length.
	_, err = DecodeKey("deadbeef")
	require.Error(t, err)
}

func TestWrapUnwrapRoundTrip(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LocalMasterKey = hex.EncodeToString(testKey(t))

	plugin, err := keywrap.Select("local")
	require.NoError(t, err)
	provider, err := plugin.Loader(context.Background(), &cfg)
	require.NoError(t, err)
	require.Equal(t, KeyID, provider.KeyID())

	dek := testKey(t)
	wrapped, err := provider.Wrap(context.Background(), dek)
	require.NoError(t, err)
	require.NotEqual(t, dek, wrapped)

	unwrapped, err := provider.Unwrap(context.Background(), wrapped)
	require.NoError(t, err)
	require.Equal(t, dek, unwrapped)
}

func TestUnwrapRejectsTampering(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LocalMasterKey = hex.EncodeToString(testKey(t))

	plugin, err := keywrap.Select("local")
	require.NoError(t, err)
	provider, err := plugin.Loader(context.Background(), &cfg)
	require.NoError(t, err)

	wrapped, err := provider.Wrap(context.Background(), testKey(t))
	require.NoError(t, err)

	wrapped[len(wrapped)-1] ^= 0x01
	_, err = provider.Unwrap(context.Background(), wrapped)
	require.Error(t, err)

	_, err = provider.Unwrap(context.Background(), []byte("short"))
	require.Error(t, err)
}

func TestLoaderRequiresKey(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.LocalMasterKey = ""

	plugin, err := keywrap.Select("local")
	require.NoError(t, err)
	_, err = plugin.Loader(context.Background(), &cfg)
	require.Error(t, err)
}
