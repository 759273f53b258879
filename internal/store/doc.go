/*
Package store implements the update store: a crash-tolerant, file-per-update
index of the descriptors the daemon has seen.

# Layout

	<store_root>/
	  <mpak_id>/
	    info.json   -- marshaled types.StoreRecord
	    update.mpak -- the downloaded package, once retrieved (the retriever
	                   writes update.mpak.tmp and renames it into place)
	    tmp/        -- created with the directory; holds the uniquely named
	                   scratch directories handed out by ScratchDir

info.json is written via write-temp-then-rename so a crash mid-update never
leaves a torn record: the directory either has the previous info.json or the
new one, never a partial write.

# Concurrency

Store holds one mutex per mpak_id (taken by Add, and available through
PerUpdateLock to callers that span several calls) plus a coarser RWMutex
over the in-memory index (held exclusively while inserting or removing an
entry and while Update's callback mutates a record, shared while reading
or listing).
*/
package store
