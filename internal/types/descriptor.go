package types

import "time"

// UpdateDescriptor is the announcement record delivered over the broker and
// persisted by the store. Field names and JSON tags match the wire format
// exactly; renames happen only in the JSON tag, never in the Go name.
type UpdateDescriptor struct {
	MpakID          string   `json:"mpakId"`
	MpakDownloadURL string   `json:"mpakDownloadUrl"`
	TargetDevices   []string `json:"targetDevices,omitempty"`
	PublishedOn     string   `json:"publishedOn"`
	CRC             string   `json:"crc,omitempty"`
	Version         string   `json:"version,omitempty"`
	FileSize        uint32   `json:"fileSize,omitempty"`
	Metadata        string   `json:"metadata,omitempty"`
	Summary         string   `json:"summary,omitempty"`
	Detail          string   `json:"detail,omitempty"`
	UpdateType      *int     `json:"updateType,omitempty"`

	// Retrieved and Applied are tri-state: nil means "not yet known" (the
	// wire format's Option<bool>), distinct from an explicit false. They are
	// monotonic in this daemon's own usage — once set true, no normal
	// operation resets either back to false or nil. Only Store.Remove drops
	// a descriptor entirely; the store has no bulk clear operation.
	Retrieved *bool `json:"retrieved,omitempty"`
	Applied   *bool `json:"applied,omitempty"`
}

// DownloadURL returns the URL to fetch the package from. A bare authority
// (no scheme) is rewritten to an http:// URL, per spec.
func (d *UpdateDescriptor) DownloadURL() string {
	return rewriteBareAuthority(d.MpakDownloadURL)
}

// IsRetrieved and IsApplied treat a nil Retrieved/Applied as not-yet-known,
// so callers that only care about truthiness don't have to nil-check.
func (d *UpdateDescriptor) IsRetrieved() bool { return d.Retrieved != nil && *d.Retrieved }
func (d *UpdateDescriptor) IsApplied() bool   { return d.Applied != nil && *d.Applied }

// BoolPtr returns a pointer to b, for setting the tri-state Retrieved/Applied
// fields from a literal.
func BoolPtr(b bool) *bool { return &b }

func rewriteBareAuthority(url string) string {
	if hasScheme(url) {
		return url
	}
	return "http://" + url
}

func hasScheme(url string) bool {
	for i := 0; i < len(url); i++ {
		switch url[i] {
		case ':':
			return i > 0 && i+2 < len(url) && url[i+1] == '/' && url[i+2] == '/'
		case '/', '?', '#':
			return false
		}
	}
	return false
}

// ApplyState is the store's tri-state bookkeeping for a descriptor's apply
// outcome, supplementing the wire descriptor's boolean Applied flag with a
// distinct Failed marker so a timed-out apply is not silently re-queued
// forever (see DESIGN.md, "Open Questions resolved").
type ApplyState string

const (
	ApplyStatePending ApplyState = "pending"
	ApplyStateApplied ApplyState = "applied"
	ApplyStateFailed  ApplyState = "failed"
)

// StoreRecord is the on-disk representation of one entry: the descriptor
// plus store-local bookkeeping, serialized to <store_root>/<mpak_id>/info.json.
type StoreRecord struct {
	Descriptor  UpdateDescriptor `json:"descriptor"`
	ApplyState  ApplyState       `json:"applyState"`
	LastError   string           `json:"lastError,omitempty"`
	RetrievedAt time.Time        `json:"retrievedAt,omitempty"`
	AppliedAt   time.Time        `json:"appliedAt,omitempty"`
}
