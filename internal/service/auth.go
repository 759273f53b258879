package service

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/wildernesslabs/meadowd/internal/authcrypto"
	"github.com/wildernesslabs/meadowd/internal/telemetry"
	"github.com/wildernesslabs/meadowd/internal/types"
)

// authResult is what a successful device-login produces: a bearer token
// ready to hand to the broker as the MQTT password, and the owner id
// extracted from its oid claim for {OID} topic substitution.
type authResult struct {
	bearerToken string
	ownerID     string
}

// deviceLogin performs the device-login procedure against authBaseURL:
// POST /api/devices/login with the uppercased device id, then decrypts
// the response with privateKey.
func deviceLogin(ctx context.Context, client *http.Client, authBaseURL, deviceID string, privateKey *rsa.PrivateKey) (result *authResult, err error) {
	defer func() {
		outcome := "success"
		if err != nil {
			outcome = "failure"
		}
		telemetry.AuthAttemptsTotal.WithLabelValues(outcome).Inc()
	}()

	body, err := json.Marshal(map[string]string{"id": strings.ToUpper(deviceID)})
	if err != nil {
		return nil, types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("marshal login request: %w", err))
	}

	url := strings.TrimSuffix(authBaseURL, "/") + "/api/devices/login"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader(string(body)))
	if err != nil {
		return nil, types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("build login request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return nil, types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("device login request: %w", err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, types.NewError(types.ErrorKindAuthFailed, fmt.Errorf("read login response: %w", err))
	}

	if resp.StatusCode == http.StatusNotFound {
		return nil, types.NewHTTPStatusError(http.StatusNotFound, fmt.Errorf("device %s is not provisioned", deviceID))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, types.NewHTTPStatusError(resp.StatusCode, fmt.Errorf("device login"))
	}

	loginResp, err := authcrypto.ParseLoginResponse(respBody)
	if err != nil {
		return nil, err
	}

	bearerToken, err := authcrypto.Decrypt(loginResp, privateKey)
	if err != nil {
		return nil, err
	}

	ownerID, err := authcrypto.ExtractOID(bearerToken)
	if err != nil {
		return nil, err
	}

	return &authResult{bearerToken: bearerToken, ownerID: ownerID}, nil
}

// authBackoff is the sleep before the next login attempt after failCount
// consecutive failures: 5 * min(failCount, 12) seconds, per spec's
// quantized backoff. The clamp at 12 bounds the worst-case wait at one
// minute.
func authBackoff(failCount int) time.Duration {
	capped := failCount
	if capped > 12 {
		capped = 12
	}
	return time.Duration(5*capped) * time.Second
}
