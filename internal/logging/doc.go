// Package logging wraps zerolog with meadowd's scoped child logger
// convention: subsystems (broker, apply worker, retriever, store) log
// through a child logger built by WithComponent or WithMpakID, which
// carries the component or mpak_id field on every line it writes.
// WithAppDir and WithPID build app_dir- and pid-scoped loggers the same way.
package logging
