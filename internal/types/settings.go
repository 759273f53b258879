package types

import "time"

// Settings is the populated configuration record the control loop, broker
// and apply engine are built against. It is parsed by internal/config from
// the settings-file grammar and overridable per-field by environment
// variables; nothing downstream of this struct cares how it was populated.
type Settings struct {
	UpdateServerAddress string
	UpdateServerPort    int

	AuthServerAddress string
	AuthServerPort    int
	UseAuthentication bool

	MqttTopics []string

	ConnectRetrySeconds    int
	UpdateApplyTimeoutSecs int
	AuthMaxRetries         int
	SSHKeyPath             string
	AutoDownloadUpdates    bool
	AppIsSystemdService    bool
	AppServiceName         string

	// StoreRoot is update_store_path: where internal/store persists
	// descriptors and downloaded packages.
	StoreRoot string

	// StagingPath, RollbackPath and TempExtractPath are the apply engine's
	// three scratch directories (§4.4 of the control-loop design).
	StagingPath     string
	RollbackPath    string
	TempExtractPath string

	// HealthAddr is an ambient addition not named in the original settings
	// grammar; it is still env-overridable via the MEADOWD_ prefix like
	// every other field. One listener serves /health, /ready, /metrics and
	// /api/*, mirroring the teacher's single combined operability address.
	HealthAddr string
}

// ConnectRetryInterval is ConnectRetrySeconds as a time.Duration.
func (s *Settings) ConnectRetryInterval() time.Duration {
	return time.Duration(s.ConnectRetrySeconds) * time.Second
}

// ApplyTimeout is UpdateApplyTimeoutSecs as a time.Duration.
func (s *Settings) ApplyTimeout() time.Duration {
	return time.Duration(s.UpdateApplyTimeoutSecs) * time.Second
}

// Defaults returns a Settings populated with the daemon's built-in defaults,
// applied before the settings file and environment overrides are layered on.
func Defaults() *Settings {
	return &Settings{
		ConnectRetrySeconds:    5,
		UpdateApplyTimeoutSecs: 120,
		AuthMaxRetries:         5,
		StoreRoot:              "/var/lib/meadowd/updates",
		StagingPath:            "/var/lib/meadowd/staging",
		RollbackPath:           "/var/lib/meadowd/rollback",
		TempExtractPath:        "/var/lib/meadowd/extract",
		HealthAddr:             ":8081",
	}
}
