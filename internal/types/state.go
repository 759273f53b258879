package types

// ServiceState enumerates the Authenticate→Subscribe→Dispatch control loop's
// states. Only the states named in the transition diagram below are ever
// entered by internal/service; Idle/UpdateAvailable/DownloadingFile/
// UpdateInProgress exist as reserved values because the original source this
// was distilled from stubbed their handling — this repo does not prescribe
// transitions for them either (see DESIGN.md, "Open Questions resolved").
//
//	Dead -> Disconnected -> Authenticating <-> Authenticated -> Connecting -> Connected
type ServiceState string

const (
	ServiceStateDead            ServiceState = "dead"
	ServiceStateDisconnected    ServiceState = "disconnected"
	ServiceStateAuthenticating  ServiceState = "authenticating"
	ServiceStateAuthenticated   ServiceState = "authenticated"
	ServiceStateConnecting      ServiceState = "connecting"
	ServiceStateConnected       ServiceState = "connected"

	// Reserved, unprescribed states.
	ServiceStateIdle             ServiceState = "idle"
	ServiceStateUpdateAvailable  ServiceState = "update_available"
	ServiceStateDownloadingFile  ServiceState = "downloading_file"
	ServiceStateUpdateInProgress ServiceState = "update_in_progress"
)
