package forensicfs

import (
	"time"

	"github.com/klauspost/crc32"
)

// EventKind names a mutation of the image.
type EventKind string

const (
	EventImageCreated       EventKind = "image-created"
	EventSuperblockWritten  EventKind = "superblock-written"
	EventBlockBitmapWritten EventKind = "block-bitmap-written"
	EventInodeBitmapWritten EventKind = "inode-bitmap-written"
	EventInodeTableWritten  EventKind = "inode-table-written"
	EventBlockAllocated     EventKind = "block-allocated"
	EventBlockFreed         EventKind = "block-freed"
	EventInodeAllocated     EventKind = "inode-allocated"
	EventInodeFreed         EventKind = "inode-freed"
	EventInodeWritten       EventKind = "inode-written"
	EventMounted            EventKind = "mounted"
)

// Event is one provenance record: what changed, where, when, and a CRC-32 (IEEE)
// of the bytes that were written.
//
// Block is always the device block the digested bytes were written to (the first
// one for the inode table). DataBlock is the data block an allocation or release
// refers to and is zero for every other kind.
type Event struct {
	Kind      EventKind
	Block     uint32
	DataBlock uint32
	Inode     uint32
	Digest    uint32
	Time      time.Time
}

// EventSink receives an Event after every successful mutation of an image.
// A sink error is logged and never fails the mutation.
type EventSink interface {
	Record(Event) error
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event) error

func (f EventSinkFunc) Record(e Event) error { return f(e) }

// Digest returns the CRC-32 (IEEE) of b.
func Digest(b []byte) uint32 {
	return crc32.ChecksumIEEE(b)
}

// emit stamps ev with the digest of written and the current time and hands it to
// the sink.
func (e *Image) emit(ev Event, written []byte) {
	if e.sink == nil {
		return
	}

	ev.Digest = Digest(written)
	ev.Time = e.now()

	if err := e.sink.Record(ev); err != nil {
		e.logger.Warn("recording event failed",
			"kind", ev.Kind, "block", ev.Block, "data_block", ev.DataBlock, "inode", ev.Inode, "err", err)
	}
}

// emitSuperblock records a write of the in-memory superblock to block 0.
func (e *Image) emitSuperblock(kind EventKind) {
	if e.sink == nil {
		return
	}

	data, err := e.sb.Encode()
	if err != nil {
		e.logger.Warn("recording event failed", "kind", kind, "err", err)
		return
	}
	e.emit(Event{Kind: kind, Block: SuperblockBlock}, data)
}
