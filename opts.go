package forensicfs

import (
	"errors"
	"log/slog"
	"time"
)

// ImageOption is a functional option for configuring Image creation and opening.
type ImageOption func(*Image) error

// WithImagePath sets the backing image file path.
func WithImagePath(imagePath string) ImageOption {
	return func(i *Image) error {
		if imagePath == "" {
			return errors.New("image path must not be empty")
		}
		i.imagePath = imagePath
		return nil
	}
}

// WithDevice uses an existing device instead of an image file path.
func WithDevice(dev BlockDevice) ImageOption {
	return func(i *Image) error {
		if dev == nil {
			return errors.New("device must not be nil")
		}
		i.dev = dev
		return nil
	}
}

// WithBlockSize sets the block size in bytes.
func WithBlockSize(blockSize uint32) ImageOption {
	return func(i *Image) error {
		i.geometry.BlockSize = blockSize
		return nil
	}
}

// WithTotalBlocks sets the number of blocks in the image.
func WithTotalBlocks(totalBlocks uint32) ImageOption {
	return func(i *Image) error {
		i.geometry.TotalBlocks = totalBlocks
		return nil
	}
}

// WithGeometry sets block size and count together.
func WithGeometry(g Geometry) ImageOption {
	return func(i *Image) error {
		i.geometry = g
		return nil
	}
}

// WithClock sets the wall clock used for every forensic timestamp.
func WithClock(now func() time.Time) ImageOption {
	return func(i *Image) error {
		if now == nil {
			return errors.New("clock must not be nil")
		}
		i.now = now
		return nil
	}
}

// WithCreatedAt pins every timestamp to t, for reproducible images.
func WithCreatedAt(t time.Time) ImageOption {
	return WithClock(func() time.Time { return t })
}

// WithLogger sets the logger for step-by-step debug output and sink warnings.
func WithLogger(logger *slog.Logger) ImageOption {
	return func(i *Image) error {
		if logger != nil {
			i.logger = logger
		}
		return nil
	}
}

// WithEventSink records every image mutation to sink.
func WithEventSink(sink EventSink) ImageOption {
	return func(i *Image) error {
		i.sink = sink
		return nil
	}
}
