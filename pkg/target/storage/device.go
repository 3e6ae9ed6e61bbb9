package storage

import (
	"errors"
	"fmt"
	"os"
	"sync"
)

// BlockSize is the fixed block size of the medium.
const BlockSize = 512

// Device is the block medium the image is written to.
type Device interface {
	// Present reports whether the medium is inserted.
	Present() bool
	// Init prepares the medium for a new image.
	Init() error
	// WriteBlock writes exactly BlockSize bytes at block address addr.
	WriteBlock(addr uint32, block []byte) error
}

// FileDevice writes blocks into a file or a raw block device node, such
// as the card reader's /dev/sdX.
type FileDevice struct {
	Path string
	// Create makes Init create the file if missing. Block device nodes
	// are never created.
	Create bool

	lock sync.Mutex
	file *os.File
}

// NewFileDevice creates a FileDevice.
func NewFileDevice(path string, create bool) *FileDevice {
	return &FileDevice{Path: path, Create: create}
}

// Present implements Device.
func (d *FileDevice) Present() bool {
	if d.Create {
		return true
	}
	_, err := os.Stat(d.Path)
	return err == nil
}

// Init implements Device. It reopens the file, truncating regular files.
func (d *FileDevice) Init() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.file != nil {
		d.file.Close()
		d.file = nil
	}
	flags := os.O_WRONLY
	if d.Create {
		flags |= os.O_CREATE
	}
	f, err := os.OpenFile(d.Path, flags, 0644)
	if err != nil {
		return err
	}
	if info, err := f.Stat(); err == nil && info.Mode().IsRegular() {
		if err := f.Truncate(0); err != nil {
			f.Close()
			return err
		}
	}
	d.file = f
	return nil
}

// WriteBlock implements Device.
func (d *FileDevice) WriteBlock(addr uint32, block []byte) error {
	if len(block) != BlockSize {
		return fmt.Errorf("invalid block size %d", len(block))
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.file == nil {
		return errors.New("device not initialized")
	}
	_, err := d.file.WriteAt(block, int64(addr)*BlockSize)
	return err
}

// Sync flushes written blocks.
func (d *FileDevice) Sync() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.file == nil {
		return nil
	}
	return d.file.Sync()
}

// Close implements io.Closer.
func (d *FileDevice) Close() error {
	d.lock.Lock()
	defer d.lock.Unlock()
	if d.file == nil {
		return nil
	}
	err := d.file.Close()
	d.file = nil
	return err
}

// MemDevice keeps blocks in memory and records every write.
type MemDevice struct {
	Absent  bool
	InitErr error
	// FailAt makes writes to this block address fail when FailErr is set.
	FailAt  uint32
	FailErr error

	lock   sync.Mutex
	blocks map[uint32][]byte
	writes []uint32
}

// NewMemDevice creates an empty MemDevice.
func NewMemDevice() *MemDevice {
	return &MemDevice{blocks: make(map[uint32][]byte)}
}

// Present implements Device.
func (d *MemDevice) Present() bool {
	return !d.Absent
}

// Init implements Device.
func (d *MemDevice) Init() error {
	if d.InitErr != nil {
		return d.InitErr
	}
	d.lock.Lock()
	d.blocks, d.writes = make(map[uint32][]byte), nil
	d.lock.Unlock()
	return nil
}

// WriteBlock implements Device.
func (d *MemDevice) WriteBlock(addr uint32, block []byte) error {
	if d.FailErr != nil && addr == d.FailAt {
		return d.FailErr
	}
	d.lock.Lock()
	defer d.lock.Unlock()
	d.blocks[addr] = append([]byte(nil), block...)
	d.writes = append(d.writes, addr)
	return nil
}

// Block returns a copy of the block at addr, nil if never written.
func (d *MemDevice) Block(addr uint32) []byte {
	d.lock.Lock()
	defer d.lock.Unlock()
	if b, ok := d.blocks[addr]; ok {
		return append([]byte(nil), b...)
	}
	return nil
}

// Writes returns the block addresses in write order.
func (d *MemDevice) Writes() []uint32 {
	d.lock.Lock()
	defer d.lock.Unlock()
	return append([]uint32(nil), d.writes...)
}

// Image concatenates blocks 0..n-1 and truncates to size bytes.
func (d *MemDevice) Image(size int) []byte {
	d.lock.Lock()
	defer d.lock.Unlock()
	img := make([]byte, 0, size+BlockSize)
	for addr := uint32(0); len(img) < size; addr++ {
		b, ok := d.blocks[addr]
		if !ok {
			b = make([]byte, BlockSize)
		}
		img = append(img, b...)
	}
	return img[:size]
}
