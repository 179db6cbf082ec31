// Package pager mediates all access to the database file through a
// fixed-capacity, per-page cache. There is no eviction: every page
// touched during the lifetime of an open database stays resident
// until Close. Writes are lazy; nothing is written back except on an
// explicit Flush or during Close.
package pager

import (
	"io"
	"os"

	"github.com/pkg/errors"
)

const (
	// PageSize is the fixed size, in bytes, of every page in the file.
	PageSize = 4096

	// MaxPages bounds the number of pages a single database file may
	// ever hold. Page 0 is the database header; pages 1..MaxPages-1
	// are tree nodes.
	MaxPages = 256
)

// Page is a fixed-size buffer holding one page's bytes.
type Page = [PageSize]byte

// Pager owns the database file and a table of page buffers indexed
// by page number. Slot i either holds an owned buffer for page i or
// is nil.
type Pager struct {
	file     *os.File
	pages    [MaxPages]*Page
	numPages uint32 // pages known to exist on disk or allocated in-memory
}

// Open opens path for read/write, creating it if it does not exist.
// The file length must be an exact multiple of PageSize; any other
// length is reported as a corrupt-database error.
func Open(path string) (*Pager, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, errors.Wrap(err, "pager: open")
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, errors.Wrap(err, "pager: stat")
	}

	size := info.Size()
	if size%PageSize != 0 {
		file.Close()
		return nil, errors.Errorf("pager: corrupt database file %q: length %d is not a multiple of page size %d", path, size, PageSize)
	}

	return &Pager{
		file:     file,
		numPages: uint32(size / PageSize),
	}, nil
}

// NumPages reports the number of pages known to exist, whether
// already on disk or only allocated in the cache.
func (p *Pager) NumPages() uint32 {
	return p.numPages
}

// GetPage returns the buffer for pageNum, loading it from disk on
// first touch. Pages past the current end of file are returned as
// freshly zeroed buffers and extend the page count.
func (p *Pager) GetPage(pageNum uint32) (*Page, error) {
	if pageNum >= MaxPages {
		return nil, errors.Errorf("pager: page number %d exceeds capacity of %d pages", pageNum, MaxPages)
	}

	if p.pages[pageNum] == nil {
		page := new(Page)

		if pageNum < p.numPages {
			offset := int64(pageNum) * PageSize
			if _, err := p.file.ReadAt(page[:], offset); err != nil && err != io.EOF {
				return nil, errors.Wrapf(err, "pager: short read on page %d", pageNum)
			}
		}

		p.pages[pageNum] = page

		if pageNum >= p.numPages {
			p.numPages = pageNum + 1
		}
	}

	return p.pages[pageNum], nil
}

// Flush writes slot pageNum's full page back to disk at its offset.
// The caller must have fetched the page with GetPage first.
func (p *Pager) Flush(pageNum uint32) error {
	if pageNum >= MaxPages {
		return errors.Errorf("pager: page number %d exceeds capacity of %d pages", pageNum, MaxPages)
	}
	if p.pages[pageNum] == nil {
		return errors.Errorf("pager: flush of page %d that was never fetched", pageNum)
	}

	offset := int64(pageNum) * PageSize
	if _, err := p.file.WriteAt(p.pages[pageNum][:], offset); err != nil {
		return errors.Wrapf(err, "pager: short write on page %d", pageNum)
	}
	return nil
}

// Close flushes every resident page and closes the underlying file.
func (p *Pager) Close() error {
	for i := uint32(0); i < MaxPages; i++ {
		if p.pages[i] == nil {
			continue
		}
		if err := p.Flush(i); err != nil {
			return err
		}
		p.pages[i] = nil
	}
	return p.file.Close()
}
