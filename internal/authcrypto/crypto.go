package authcrypto

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"os"

	"github.com/golang-jwt/jwt/v5"

	"github.com/wildernesslabs/meadowd/internal/types"
)

// LoginResponse is the body of a 200 response from the device-login
// endpoint. Field names match the wire JSON exactly.
type LoginResponse struct {
	EncryptedKey   string `json:"encryptedKey"`
	EncryptedToken string `json:"encryptedToken"`
	IV             string `json:"iv"`
}

// LoadPrivateKey reads path and parses it as a PEM-encoded RSA private
// key, accepting both PKCS#1 and PKCS#8 container formats. Unlike the
// original daemon, it never shells out to a key-conversion tool: a key
// that isn't valid PEM is a configuration error, not something to fix up
// at runtime.
func LoadPrivateKey(path string) (*rsa.PrivateKey, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, types.NewError(types.ErrorKindIOFailure, fmt.Errorf("read private key %s: %w", path, err))
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("%s is not PEM-encoded", path))
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("parse private key %s: %w", path, err))
	}
	key, ok := parsed.(*rsa.PrivateKey)
	if !ok {
		return nil, types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("%s is not an RSA private key", path))
	}
	return key, nil
}

// Decrypt reverses the device-login response's two-stage encryption and
// returns the bearer token (a JWT, as UTF-8 text).
func Decrypt(resp *LoginResponse, privateKey *rsa.PrivateKey) (string, error) {
	encryptedKey, err := base64.StdEncoding.DecodeString(resp.EncryptedKey)
	if err != nil {
		return "", types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("decode encryptedKey: %w", err))
	}
	encryptedToken, err := base64.StdEncoding.DecodeString(resp.EncryptedToken)
	if err != nil {
		return "", types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("decode encryptedToken: %w", err))
	}
	iv, err := base64.StdEncoding.DecodeString(resp.IV)
	if err != nil {
		return "", types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("decode iv: %w", err))
	}

	aesKey, err := rsa.DecryptPKCS1v15(rand.Reader, privateKey, encryptedKey)
	if err != nil {
		return "", types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("rsa-decrypt aes key: %w", err))
	}
	if len(aesKey) != 32 {
		return "", types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("decrypted aes key is %d bytes, want 32", len(aesKey)))
	}

	plaintext, err := aesCBCDecrypt(aesKey, iv, encryptedToken)
	if err != nil {
		return "", types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("aes-decrypt token: %w", err))
	}

	return string(plaintext), nil
}

func aesCBCDecrypt(key, iv, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	if len(iv) != block.BlockSize() {
		return nil, fmt.Errorf("iv is %d bytes, want %d", len(iv), block.BlockSize())
	}
	if len(ciphertext) == 0 || len(ciphertext)%block.BlockSize() != 0 {
		return nil, fmt.Errorf("ciphertext length %d is not a multiple of block size %d", len(ciphertext), block.BlockSize())
	}

	plaintext := make([]byte, len(ciphertext))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plaintext, ciphertext)

	return pkcs7Unpad(plaintext, block.BlockSize())
}

func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	n := len(data)
	if n == 0 {
		return nil, fmt.Errorf("empty plaintext")
	}
	pad := int(data[n-1])
	if pad == 0 || pad > blockSize || pad > n {
		return nil, fmt.Errorf("invalid pkcs7 padding")
	}
	if !bytes.Equal(data[n-pad:], bytes.Repeat([]byte{byte(pad)}, pad)) {
		return nil, fmt.Errorf("invalid pkcs7 padding")
	}
	return data[:n-pad], nil
}

// oidClaims is the subset of the bearer token's JWT payload this daemon
// cares about.
type oidClaims struct {
	OID string `json:"oid"`
	jwt.RegisteredClaims
}

// ExtractOID decodes the bearer token's payload and returns its oid
// claim. The signature is deliberately not verified; see the package doc.
func ExtractOID(bearerToken string) (string, error) {
	parser := jwt.NewParser()
	var claims oidClaims
	if _, _, err := parser.ParseUnverified(bearerToken, &claims); err != nil {
		return "", types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("parse bearer token: %w", err))
	}
	if claims.OID == "" {
		return "", types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("bearer token has no oid claim"))
	}
	return claims.OID, nil
}

// ParseLoginResponse unmarshals the device-login endpoint's 200 response
// body.
func ParseLoginResponse(body []byte) (*LoginResponse, error) {
	var resp LoginResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("parse login response: %w", err))
	}
	return &resp, nil
}

// PublicKeyPEM re-encodes the private key's public half as a PEM block,
// for the /api/info endpoint's public-key-PEM field.
func PublicKeyPEM(key *rsa.PrivateKey) ([]byte, error) {
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return nil, fmt.Errorf("marshal public key: %w", err)
	}
	return pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}), nil
}
