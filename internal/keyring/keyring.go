// Package keyring encrypts credential-store values at rest. A Provider wraps
// and unwraps opaque blobs; the store never sees key material directly.
package keyring

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	vault "github.com/hashicorp/vault/api"

	"github.com/lumeo-social/walletbridge/internal/config"
)

// Provider encrypts and decrypts credential-store values.
type Provider interface {
	// Encrypt encrypts a store value.
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)

	// Decrypt decrypts a store value.
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)

	// Name returns the provider name ("local", "aws-kms", "vault").
	Name() string
}

// New creates a Provider from configuration.
func New(cfg *config.Config) (Provider, error) {
	switch cfg.KeyringProvider {
	case "local", "":
		return NewLocal(cfg.LocalMasterKeyHex)
	case "aws-kms":
		return NewAWSKMS(cfg.AWSKMSKeyID, cfg.AWSKMSRegion)
	case "vault":
		return NewVault(cfg.VaultAddress, cfg.VaultToken, cfg.VaultTransitKey)
	default:
		return nil, fmt.Errorf("unsupported keyring provider: %s", cfg.KeyringProvider)
	}
}

// Local encrypts values with AES-GCM under a device-local master key.
type Local struct {
	masterKey []byte
}

// NewLocal creates a local provider. The key may be a hex-encoded 32-byte
// key; any other string is hashed down to 32 bytes.
func NewLocal(masterKeyHex string) (*Local, error) {
	if masterKeyHex == "" {
		return nil, fmt.Errorf("master key is required for local keyring")
	}

	key, err := hex.DecodeString(masterKeyHex)
	if err != nil || len(key) != 32 {
		sum := sha256.Sum256([]byte(masterKeyHex))
		key = sum[:]
	}

	return &Local{masterKey: key}, nil
}

// Encrypt encrypts plaintext with AES-GCM; the nonce is prepended.
func (p *Local) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	gcm, err := p.aead()
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generate nonce: %w", err)
	}

	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt decrypts a blob produced by Encrypt.
func (p *Local) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	gcm, err := p.aead()
	if err != nil {
		return nil, err
	}

	nonceSize := gcm.NonceSize()
	if len(ciphertext) < nonceSize {
		return nil, fmt.Errorf("ciphertext too short")
	}

	nonce, sealed := ciphertext[:nonceSize], ciphertext[nonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypt store value: %w", err)
	}

	return plaintext, nil
}

// Name returns the provider name.
func (p *Local) Name() string { return "local" }

func (p *Local) aead() (cipher.AEAD, error) {
	block, err := aes.NewCipher(p.masterKey)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create GCM: %w", err)
	}
	return gcm, nil
}

// AWSKMS encrypts values through an AWS KMS key.
type AWSKMS struct {
	keyID  string
	client *kms.Client
}

// NewAWSKMS creates an AWS KMS provider using the default credential chain.
func NewAWSKMS(keyID, region string) (*AWSKMS, error) {
	if keyID == "" {
		return nil, fmt.Errorf("AWS KMS key ID is required")
	}
	if region == "" {
		return nil, fmt.Errorf("AWS region is required")
	}

	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load AWS config: %w", err)
	}

	return &AWSKMS{keyID: keyID, client: kms.NewFromConfig(cfg)}, nil
}

// Encrypt encrypts plaintext with AWS KMS.
func (p *AWSKMS) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	out, err := p.client.Encrypt(ctx, &kms.EncryptInput{
		KeyId:     aws.String(p.keyID),
		Plaintext: plaintext,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS encrypt failed: %w", err)
	}
	return out.CiphertextBlob, nil
}

// Decrypt decrypts a blob with AWS KMS.
func (p *AWSKMS) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	out, err := p.client.Decrypt(ctx, &kms.DecryptInput{
		KeyId:          aws.String(p.keyID),
		CiphertextBlob: ciphertext,
	})
	if err != nil {
		return nil, fmt.Errorf("AWS KMS decrypt failed: %w", err)
	}
	return out.Plaintext, nil
}

// Name returns the provider name.
func (p *AWSKMS) Name() string { return "aws-kms" }

// Vault encrypts values through a HashiCorp Vault Transit key.
type Vault struct {
	transitKey string
	client     *vault.Client
}

// NewVault creates a Vault Transit provider.
func NewVault(address, token, transitKey string) (*Vault, error) {
	if address == "" {
		return nil, fmt.Errorf("Vault address is required")
	}
	if token == "" {
		return nil, fmt.Errorf("Vault token is required")
	}
	if transitKey == "" {
		return nil, fmt.Errorf("Vault transit key name is required")
	}

	vaultConfig := vault.DefaultConfig()
	vaultConfig.Address = address

	client, err := vault.NewClient(vaultConfig)
	if err != nil {
		return nil, fmt.Errorf("create Vault client: %w", err)
	}
	client.SetToken(token)

	return &Vault{transitKey: transitKey, client: client}, nil
}

// Encrypt encrypts plaintext through the Transit engine.
func (p *Vault) Encrypt(ctx context.Context, plaintext []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/encrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"plaintext": base64.StdEncoding.EncodeToString(plaintext),
	})
	if err != nil {
		return nil, fmt.Errorf("Vault Transit encrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("Vault Transit encrypt returned empty response")
	}

	ciphertext, ok := secret.Data["ciphertext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit encrypt: ciphertext missing from response")
	}

	// The ciphertext is a vault:v1:... string.
	return []byte(ciphertext), nil
}

// Decrypt decrypts a Transit blob.
func (p *Vault) Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error) {
	path := fmt.Sprintf("transit/decrypt/%s", p.transitKey)
	secret, err := p.client.Logical().WriteWithContext(ctx, path, map[string]interface{}{
		"ciphertext": string(ciphertext),
	})
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt failed: %w", err)
	}
	if secret == nil || secret.Data == nil {
		return nil, fmt.Errorf("Vault Transit decrypt returned empty response")
	}

	plaintextB64, ok := secret.Data["plaintext"].(string)
	if !ok {
		return nil, fmt.Errorf("Vault Transit decrypt: plaintext missing from response")
	}

	plaintext, err := base64.StdEncoding.DecodeString(plaintextB64)
	if err != nil {
		return nil, fmt.Errorf("Vault Transit decrypt: decode plaintext: %w", err)
	}

	return plaintext, nil
}

// Name returns the provider name.
func (p *Vault) Name() string { return "vault" }

var (
	_ Provider = (*Local)(nil)
	_ Provider = (*AWSKMS)(nil)
	_ Provider = (*Vault)(nil)
)
