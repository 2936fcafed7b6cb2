package memory

// Buffer is a device buffer bound to a sub-allocated range.
type Buffer struct {
	// Handle is the device's buffer object.
	Handle any
	// Desc is the descriptor the buffer was created with.
	Desc BufferDesc
	// Allocation is the range the buffer is bound to.
	Allocation *Allocation
}

// Map maps the buffer's range. Pair every call with Unmap.
func (b *Buffer) Map() ([]byte, error) {
	data, err := b.Allocation.Map()
	if err != nil {
		return nil, err
	}
	return data[:b.Desc.Size:b.Desc.Size], nil
}

// Unmap releases a mapping obtained from Map.
func (b *Buffer) Unmap() error { return b.Allocation.Unmap() }

// Image is a device image bound to a sub-allocated range.
type Image struct {
	// Handle is the device's image object.
	Handle any
	// Desc is the descriptor the image was created with.
	Desc ImageDesc
	// Allocation is the range the image is bound to.
	Allocation *Allocation
}
