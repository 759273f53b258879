package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/wildernesslabs/meadowd/internal/logging"
	"github.com/wildernesslabs/meadowd/internal/types"
)

// Load reads the settings file at path, starting from types.Defaults() and
// overwriting each field the file sets. Unknown keys are logged and
// ignored, matching the original daemon's behavior.
func Load(path string) (*types.Settings, error) {
	settings := types.Defaults()

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open settings file: %w", err)
	}
	defer f.Close()

	logger := logging.WithComponent("config")

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := stripComment(scanner.Text())
		if line == "" {
			continue
		}

		key, val, ok := splitKeyValue(line)
		if !ok {
			continue
		}

		if err := apply(settings, key, val); err != nil {
			logger.Warn().Str("key", key).Err(err).Msg("invalid setting value")
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read settings file: %w", err)
	}

	return settings, nil
}

// stripComment truncates a line at the first '#', then trims it.
func stripComment(line string) string {
	if idx := strings.IndexByte(line, '#'); idx >= 0 {
		line = line[:idx]
	}
	return strings.TrimSpace(line)
}

// splitKeyValue splits on the first space: key is lower-cased, value is
// trimmed. A line with no space has no value and is skipped.
func splitKeyValue(line string) (key, val string, ok bool) {
	idx := strings.IndexByte(line, ' ')
	if idx < 0 {
		return "", "", false
	}
	key = strings.ToLower(line[:idx])
	val = strings.TrimSpace(line[idx:])
	return key, val, true
}

func apply(s *types.Settings, key, val string) error {
	switch key {
	case "update_server_address":
		s.UpdateServerAddress = val
	case "update_server_port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		s.UpdateServerPort = n
	case "auth_server_address":
		s.AuthServerAddress = val
	case "auth_server_port":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		s.AuthServerPort = n
	case "use_authentication":
		s.UseAuthentication = isTruthy(val)
	case "mqtt_topics":
		s.MqttTopics = strings.Split(val, ";")
	case "connect_retry_seconds":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		s.ConnectRetrySeconds = n
	case "update_apply_timeout_seconds":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		s.UpdateApplyTimeoutSecs = n
	case "auth_max_retries":
		n, err := strconv.Atoi(val)
		if err != nil {
			return err
		}
		s.AuthMaxRetries = n
	case "ssh_key_path":
		s.SSHKeyPath = val
	case "auto_download_updates":
		s.AutoDownloadUpdates = isTruthy(val)
	case "app_is_systemd_service":
		s.AppIsSystemdService = isTruthy(val)
	case "app_service_name":
		s.AppServiceName = val
	case "update_store_path", "store_root":
		s.StoreRoot = val
	case "staging_path":
		s.StagingPath = val
	case "rollback_path":
		s.RollbackPath = val
	case "temp_extract_path":
		s.TempExtractPath = val
	case "health_addr":
		s.HealthAddr = val
	default:
		logging.Logger.Warn().Str("key", key).Msg("unknown setting, ignoring")
	}
	return nil
}

// isTruthy implements the grammar's one truthy literal: "yes", case-insensitive.
func isTruthy(val string) bool {
	return strings.EqualFold(val, "yes")
}

// envPrefix is prepended to the upper-snake-case key name to form the
// environment variable that overrides it, e.g. MEADOWD_UPDATE_SERVER_ADDRESS.
const envPrefix = "MEADOWD_"

// ApplyEnvOverrides overwrites settings fields from MEADOWD_* environment
// variables, applied after the settings file so the environment always wins.
func ApplyEnvOverrides(s *types.Settings) {
	for _, kv := range []struct {
		env string
		set func(string)
	}{
		{"UPDATE_SERVER_ADDRESS", func(v string) { s.UpdateServerAddress = v }},
		{"UPDATE_SERVER_PORT", func(v string) { setInt(v, &s.UpdateServerPort) }},
		{"AUTH_SERVER_ADDRESS", func(v string) { s.AuthServerAddress = v }},
		{"AUTH_SERVER_PORT", func(v string) { setInt(v, &s.AuthServerPort) }},
		{"USE_AUTHENTICATION", func(v string) { s.UseAuthentication = isTruthy(v) }},
		{"MQTT_TOPICS", func(v string) { s.MqttTopics = strings.Split(v, ";") }},
		{"CONNECT_RETRY_SECONDS", func(v string) { setInt(v, &s.ConnectRetrySeconds) }},
		{"UPDATE_APPLY_TIMEOUT_SECONDS", func(v string) { setInt(v, &s.UpdateApplyTimeoutSecs) }},
		{"AUTH_MAX_RETRIES", func(v string) { setInt(v, &s.AuthMaxRetries) }},
		{"SSH_KEY_PATH", func(v string) { s.SSHKeyPath = v }},
		{"AUTO_DOWNLOAD_UPDATES", func(v string) { s.AutoDownloadUpdates = isTruthy(v) }},
		{"APP_IS_SYSTEMD_SERVICE", func(v string) { s.AppIsSystemdService = isTruthy(v) }},
		{"APP_SERVICE_NAME", func(v string) { s.AppServiceName = v }},
		{"STORE_ROOT", func(v string) { s.StoreRoot = v }},
		{"STAGING_PATH", func(v string) { s.StagingPath = v }},
		{"ROLLBACK_PATH", func(v string) { s.RollbackPath = v }},
		{"TEMP_EXTRACT_PATH", func(v string) { s.TempExtractPath = v }},
		{"HEALTH_ADDR", func(v string) { s.HealthAddr = v }},
	} {
		if v, ok := os.LookupEnv(envPrefix + kv.env); ok {
			kv.set(v)
		}
	}
}

func setInt(v string, dst *int) {
	if n, err := strconv.Atoi(v); err == nil {
		*dst = n
	}
}
