/*
Package extractor unpacks a downloaded .mpak (a zip archive, despite the
extension) into a destination directory; the apply engine uses its
temporary extract directory.

Extraction is defensive by necessity: the archive comes from a remote
server over an authenticated channel, not from a trusted build step, so
every member is checked for path traversal before being written. The
archive's top level must contain an app/ directory; anything that doesn't
resolve to somewhere under the destination root is rejected outright rather
than silently skipped, since a truncated-but-"successful" extract is worse
than a loud failure.
*/
package extractor
