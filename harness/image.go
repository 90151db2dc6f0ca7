package harness

import (
	"os"
	"path/filepath"

	"github.com/juju/errors"
)

// An Image is a flat firmware binary. Offset 0 holds the instruction region.
// The data region starts at the DataVirt offset of the layout.
type Image struct {
	Name string
	Data []byte
}

// LoadImageFile reads an image from a file.
func LoadImageFile(path string) (*Image, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Annotatef(err, "reading target binary")
	}

	return &Image{Name: filepath.Base(path), Data: data}, nil
}

// Size returns the size of the image.
func (img *Image) Size() uint64 {
	return uint64(len(img.Data))
}

// Validate checks that the image fits the layout.
func (img *Image) Validate(l Layout) error {
	if img.Size() > l.DataEnd() {
		return &TargetBinaryError{
			Image: img.Name,
			Msg:   "Binary too large (beyond stack location)",
		}
	}

	if img.Size() > l.InstrRange {
		end := min(img.Size(), l.DataVirt)
		for _, b := range img.Data[l.InstrRange:end] {
			if b != 0 {
				return &TargetBinaryError{
					Image: img.Name,
					Msg:   "Binary instructions too large",
				}
			}
		}
	}

	return nil
}

// InstrRegion returns the part of the image that goes into the instruction
// memory.
func (img *Image) InstrRegion(l Layout) []byte {
	return img.Data[:min(img.Size(), l.InstrRange)]
}

// DataRegion returns the part of the image that goes into the data memory.
// It is empty for images without data.
func (img *Image) DataRegion(l Layout) []byte {
	if img.Size() <= l.DataVirt {
		return nil
	}

	return img.Data[l.DataVirt:]
}

// HasData tells if the image carries a data region that must be restored
// before every run.
func (img *Image) HasData(l Layout) bool {
	return img.Size() >= l.DataVirt
}
