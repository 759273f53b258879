// Package config loads meadowd's settings file into a types.Settings
// record and layers environment-variable overrides on top. The parsing
// grammar — line-oriented, #-comments, first-space key/value split,
// case-insensitive keys, "yes"-truthy booleans, ;-separated lists — mirrors
// the original daemon's settings file exactly so existing deployments'
// settings files keep working unmodified.
package config
