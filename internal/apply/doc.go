/*
Package apply implements the update apply engine: quiescing the running
application, merging a new package's app/ subtree over the existing
install, atomically swapping it into place, and relaunching.

# Pipeline

ApplyTracked and ApplyExtracted share one pipeline after a synchronous
setup stage validates the package and returns "accepted". The rest runs on
a dedicated goroutine per apply:

	quiesce (poll for process exit, with a hard timeout)
	  -> merge (copy the package's app/ over a staging copy of app_dir)
	  -> swap (same-filesystem rename pair, falling back to file-by-file
	           copy across devices)
	  -> relaunch (systemd or direct spawn)

Every stage that can leave scratch directories behind cleans them up on
both the success and failure paths; a failed apply must never leave
app_dir, staging, or the extract directory in an inconsistent state.
*/
package apply
