package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func writeSettingsFile(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "meadow.conf")
	require.NoError(t, os.WriteFile(path, []byte(contents), 0644))
	return path
}

func TestLoad_ParsesKnownKeys(t *testing.T) {
	path := writeSettingsFile(t, `
# gateway settings
update_server_address broker.example.com
update_server_port 8883
use_authentication yes
auth_server_address auth.example.com
mqtt_topics ota;ota/{ID}/updates
connect_retry_seconds 10
update_apply_timeout_seconds 60
app_is_systemd_service YES
app_service_name myapp
update_store_path /var/lib/meadowd/updates
staging_path /var/lib/meadowd/staging
rollback_path /var/lib/meadowd/rollback
temp_extract_path /var/lib/meadowd/extract
`)

	settings, err := Load(path)
	require.NoError(t, err)

	require.Equal(t, "broker.example.com", settings.UpdateServerAddress)
	require.Equal(t, 8883, settings.UpdateServerPort)
	require.True(t, settings.UseAuthentication)
	require.Equal(t, "auth.example.com", settings.AuthServerAddress)
	require.Equal(t, []string{"ota", "ota/{ID}/updates"}, settings.MqttTopics)
	require.Equal(t, 10, settings.ConnectRetrySeconds)
	require.Equal(t, 60, settings.UpdateApplyTimeoutSecs)
	require.True(t, settings.AppIsSystemdService)
	require.Equal(t, "myapp", settings.AppServiceName)
	require.Equal(t, "/var/lib/meadowd/updates", settings.StoreRoot)
	require.Equal(t, "/var/lib/meadowd/staging", settings.StagingPath)
	require.Equal(t, "/var/lib/meadowd/rollback", settings.RollbackPath)
	require.Equal(t, "/var/lib/meadowd/extract", settings.TempExtractPath)
}

func TestLoad_IgnoresUnknownKeysAndComments(t *testing.T) {
	path := writeSettingsFile(t, `
# a full-line comment
some_future_key value # trailing comment
update_server_address broker.example.com # inline comment
`)

	settings, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, "broker.example.com", settings.UpdateServerAddress)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "does-not-exist.conf"))
	require.Error(t, err)
}

func TestApplyEnvOverrides(t *testing.T) {
	settings := writeSettingsFile(t, "update_server_address original.example.com\n")
	s, err := Load(settings)
	require.NoError(t, err)

	t.Setenv("MEADOWD_UPDATE_SERVER_ADDRESS", "override.example.com")
	ApplyEnvOverrides(s)

	require.Equal(t, "override.example.com", s.UpdateServerAddress)
}

func TestIsTruthy(t *testing.T) {
	require.True(t, isTruthy("yes"))
	require.True(t, isTruthy("YES"))
	require.False(t, isTruthy("no"))
	require.False(t, isTruthy("true"))
}
