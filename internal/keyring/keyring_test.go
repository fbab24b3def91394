package keyring

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lumeo-social/walletbridge/internal/config"
)

func TestLocal_RoundTrip(t *testing.T) {
	p, err := NewLocal("0123456789abcdef0123456789abcdef0123456789abcdef0123456789abcdef")
	require.NoError(t, err)

	ctx := context.Background()
	plaintext := []byte(`{"authToken":"tok-1"}`)

	blob, err := p.Encrypt(ctx, plaintext)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, blob)

	out, err := p.Decrypt(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, plaintext, out)
}

func TestLocal_NonHexKeyIsHashed(t *testing.T) {
	p, err := NewLocal("not-a-hex-key")
	require.NoError(t, err)

	ctx := context.Background()
	blob, err := p.Encrypt(ctx, []byte("v"))
	require.NoError(t, err)

	out, err := p.Decrypt(ctx, blob)
	require.NoError(t, err)
	assert.Equal(t, []byte("v"), out)
}

func TestLocal_EmptyKeyRejected(t *testing.T) {
	_, err := NewLocal("")
	assert.Error(t, err)
}

func TestLocal_TamperedBlobFails(t *testing.T) {
	p, err := NewLocal("master")
	require.NoError(t, err)

	ctx := context.Background()
	blob, err := p.Encrypt(ctx, []byte("value"))
	require.NoError(t, err)

	blob[len(blob)-1] ^= 0x01
	_, err = p.Decrypt(ctx, blob)
	assert.Error(t, err)
}

func TestLocal_ShortCiphertext(t *testing.T) {
	p, err := NewLocal("master")
	require.NoError(t, err)

	_, err = p.Decrypt(context.Background(), []byte{0x01, 0x02})
	assert.Error(t, err)
}

func TestNew_ProviderSelection(t *testing.T) {
	tests := []struct {
		name    string
		cfg     *config.Config
		wantErr bool
		want    string
	}{
		{
			name: "local",
			cfg:  &config.Config{KeyringProvider: "local", LocalMasterKeyHex: "k"},
			want: "local",
		},
		{
			name: "default is local",
			cfg:  &config.Config{KeyringProvider: "", LocalMasterKeyHex: "k"},
			want: "local",
		},
		{
			name:    "aws without key id",
			cfg:     &config.Config{KeyringProvider: "aws-kms"},
			wantErr: true,
		},
		{
			name:    "vault without address",
			cfg:     &config.Config{KeyringProvider: "vault"},
			wantErr: true,
		},
		{
			name:    "unsupported",
			cfg:     &config.Config{KeyringProvider: "gcp-kms"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.cfg)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, p.Name())
		})
	}
}
