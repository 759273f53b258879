/*
Package service runs the control loop: the long-lived task that carries
the daemon through Dead -> Disconnected -> Authenticating <-> Authenticated
-> Connecting -> Connected, owning authentication retries, the broker
session, and dispatching incoming descriptors to the update store.

Only the transitions named above are ever entered; Idle, UpdateAvailable,
DownloadingFile and UpdateInProgress exist on types.ServiceState as
reserved values the control loop never assigns, matching the gap in the
source this was distilled from (see DESIGN.md, "Open Questions resolved").

The loop polls its input channels non-blocking and sleeps one second
between iterations, logging a transition exactly once per state change.
*/
package service
