package authcrypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

func generateTestKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der := x509.MarshalPKCS1PrivateKey(key)
	block := &pem.Block{Type: "RSA PRIVATE KEY", Bytes: der}

	path := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))

	return key, path
}

func encryptForTest(t *testing.T, pub *rsa.PublicKey, token string) *LoginResponse {
	t.Helper()

	aesKey := make([]byte, 32)
	_, err := rand.Read(aesKey)
	require.NoError(t, err)

	block, err := aes.NewCipher(aesKey)
	require.NoError(t, err)

	iv := make([]byte, block.BlockSize())
	_, err = rand.Read(iv)
	require.NoError(t, err)

	plaintext := []byte(token)
	pad := block.BlockSize() - len(plaintext)%block.BlockSize()
	for i := 0; i < pad; i++ {
		plaintext = append(plaintext, byte(pad))
	}

	ciphertext := make([]byte, len(plaintext))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, plaintext)

	encryptedKey, err := rsa.EncryptPKCS1v15(rand.Reader, pub, aesKey)
	require.NoError(t, err)

	return &LoginResponse{
		EncryptedKey:   base64.StdEncoding.EncodeToString(encryptedKey),
		EncryptedToken: base64.StdEncoding.EncodeToString(ciphertext),
		IV:             base64.StdEncoding.EncodeToString(iv),
	}
}

func TestLoadPrivateKey_PKCS1(t *testing.T) {
	key, path := generateTestKey(t)
	loaded, err := LoadPrivateKey(path)
	require.NoError(t, err)
	require.Equal(t, key.N, loaded.N)
}

func TestLoadPrivateKey_PKCS8(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	der, err := x509.MarshalPKCS8PrivateKey(key)
	require.NoError(t, err)
	block := &pem.Block{Type: "PRIVATE KEY", Bytes: der}

	path := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(path, pem.EncodeToMemory(block), 0600))

	loaded, err := LoadPrivateKey(path)
	require.NoError(t, err)
	require.Equal(t, key.N, loaded.N)
}

func TestLoadPrivateKey_NotPEM(t *testing.T) {
	path := filepath.Join(t.TempDir(), "id_rsa")
	require.NoError(t, os.WriteFile(path, []byte("not a pem file"), 0600))

	_, err := LoadPrivateKey(path)
	require.Error(t, err)
}

func TestDecrypt_RoundTrip(t *testing.T) {
	key, _ := generateTestKey(t)

	claims := jwt.MapClaims{
		"oid": "owner-123",
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte("does-not-matter-unverified"))
	require.NoError(t, err)

	resp := encryptForTest(t, &key.PublicKey, signed)

	bearer, err := Decrypt(resp, key)
	require.NoError(t, err)
	require.Equal(t, signed, bearer)

	oid, err := ExtractOID(bearer)
	require.NoError(t, err)
	require.Equal(t, "owner-123", oid)
}

func TestDecrypt_BadBase64(t *testing.T) {
	key, _ := generateTestKey(t)
	resp := &LoginResponse{EncryptedKey: "not-base64!!", EncryptedToken: "", IV: ""}

	_, err := Decrypt(resp, key)
	require.Error(t, err)
}

func TestDecrypt_WrongKey(t *testing.T) {
	key, _ := generateTestKey(t)
	other, _ := generateTestKey(t)

	resp := encryptForTest(t, &key.PublicKey, "some-token")

	_, err := Decrypt(resp, other)
	require.Error(t, err)
}

func TestExtractOID_MissingClaim(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
	signed, err := token.SignedString([]byte("key"))
	require.NoError(t, err)

	_, err = ExtractOID(signed)
	require.Error(t, err)
}

func TestParseLoginResponse(t *testing.T) {
	body := []byte(`{"encryptedKey":"a2V5","encryptedToken":"dG9r","iv":"aXY="}`)
	resp, err := ParseLoginResponse(body)
	require.NoError(t, err)
	require.Equal(t, "a2V5", resp.EncryptedKey)
}

func TestPublicKeyPEM(t *testing.T) {
	key, _ := generateTestKey(t)
	pemBytes, err := PublicKeyPEM(key)
	require.NoError(t, err)

	block, _ := pem.Decode(pemBytes)
	require.NotNil(t, block)
	require.Equal(t, "PUBLIC KEY", block.Type)
}
