/*
Package retriever downloads a package file named by an update descriptor
to a caller-chosen path (in practice the store's update.mpak) using a
bearer-token-authenticated HTTP GET.

It does not decide whether a package should be downloaded, or what happens
to it afterward — internal/service makes that call and internal/extractor
takes it from there. Retrieve's only job is turning a descriptor and a
bearer token into bytes on disk, with the ambient timeout/context
conventions the rest of this daemon uses for outbound calls.
*/
package retriever
