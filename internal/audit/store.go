// Package audit keeps a provenance trail of every mutation made to a forensic
// image: which structure was written, where, when, and the CRC-32 of the bytes.
package audit

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	forensicfs "github.com/pilat/go-forensicfs"
)

// ErrClosed is returned by a store after Close.
var ErrClosed = errors.New("audit store is closed")

// Entry is one recorded event for one image.
type Entry struct {
	ID        string               `json:"id"`
	Image     string               `json:"image"`
	Kind      forensicfs.EventKind `json:"kind"`
	Block     uint32               `json:"block"`
	DataBlock uint32               `json:"data_block,omitempty"`
	Inode     uint32               `json:"inode,omitempty"`
	Digest    uint32               `json:"digest"`
	Time      time.Time            `json:"time"`
}

// NewEntry stamps an event with a fresh ID and the image it belongs to.
func NewEntry(image string, ev forensicfs.Event) Entry {
	return Entry{
		ID:        uuid.NewString(),
		Image:     image,
		Kind:      ev.Kind,
		Block:     ev.Block,
		DataBlock: ev.DataBlock,
		Inode:     ev.Inode,
		Digest:    ev.Digest,
		Time:      ev.Time,
	}
}

// Store persists entries. List returns the entries of one image oldest first.
type Store interface {
	Append(ctx context.Context, e Entry) error
	List(ctx context.Context, image string) ([]Entry, error)
	Close() error
}

// MemoryStore is a Store that lives for the duration of the process.
type MemoryStore struct {
	mu      sync.Mutex
	entries map[string][]Entry
	closed  bool
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string][]Entry)}
}

func (s *MemoryStore) Append(ctx context.Context, e Entry) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrClosed
	}
	s.entries[e.Image] = append(s.entries[e.Image], e)
	return nil
}

func (s *MemoryStore) List(ctx context.Context, image string) ([]Entry, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrClosed
	}

	out := append([]Entry(nil), s.entries[image]...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Time.Before(out[j].Time) })
	return out, nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

// Sink adapts a store to forensicfs.EventSink for one image.
func Sink(store Store, image string) forensicfs.EventSink {
	return forensicfs.EventSinkFunc(func(ev forensicfs.Event) error {
		if err := store.Append(context.Background(), NewEntry(image, ev)); err != nil {
			return fmt.Errorf("audit %s: %w", ev.Kind, err)
		}
		return nil
	})
}
