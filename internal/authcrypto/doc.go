/*
Package authcrypto implements the device-login decryption flow: turning the
response of the auth server's /api/devices/login endpoint into a bearer
token and an owner ID usable for broker authentication.

# Flow

The auth server never sends the bearer token in the clear. It encrypts a
fresh AES-256 key under the device's RSA public key, then encrypts the
token under that AES key:

	encryptedKey   = RSA-PKCS1v1.5(devicePublicKey, aesKey)
	encryptedToken = AES-256-CBC(aesKey, iv, PKCS7Pad(jwt))

Decrypt reverses both steps using the device's RSA private key, producing
the JWT bearer token. ExtractOID then decodes the JWT payload to pull the
oid claim used for {OID} MQTT topic substitution; the token itself is the
broker password.
The token's signature is not verified here — the device has no way to
validate the auth server's signing key, and the token is only ever
replayed back to that same server over TLS.

# Key loading

LoadPrivateKey reads the device's SSH private key file and parses it
in-process via encoding/pem and crypto/x509 (PKCS#1 or PKCS#8), without
shelling out to an external tool. A key file that is not PEM-encoded is
rejected with an error; no format conversion is attempted.
*/
package authcrypto
