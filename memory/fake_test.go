package memory

import (
	"errors"
	"fmt"

	"github.com/gogpu/gputypes"
)

// fakeDevice is an in-memory Device with configurable heaps.
type fakeDevice struct {
	props Properties

	nextID   int
	memories map[int][]byte
	bound    map[int]int // resource id -> memory id
	live     map[int]string

	mapCalls   int
	unmapCalls int
	failAlloc  bool
	alignment  uint64
}

type fakeMemory struct{ id int }
type fakeResource struct{ id int }

func newFakeDevice(heapSizes ...uint64) *fakeDevice {
	d := &fakeDevice{
		memories:  make(map[int][]byte),
		bound:     make(map[int]int),
		live:      make(map[int]string),
		alignment: 16,
	}
	if len(heapSizes) == 0 {
		heapSizes = []uint64{0, 0}
	}
	for i, size := range heapSizes {
		d.props.Heaps = append(d.props.Heaps, MemoryHeap{Size: size, DeviceLocal: i == 0})
	}
	d.props.Types = []MemoryType{
		{Properties: PropertyDeviceLocal, HeapIndex: 0},
		{Properties: PropertyHostVisible | PropertyHostCoherent, HeapIndex: len(heapSizes) - 1},
	}
	return d
}

func (d *fakeDevice) MemoryProperties() Properties { return d.props }

func (d *fakeDevice) AllocateMemory(size uint64, typeIndex int) (any, error) {
	if d.failAlloc {
		return nil, errors.New("fake: allocation refused")
	}
	d.nextID++
	d.memories[d.nextID] = make([]byte, size)
	return &fakeMemory{id: d.nextID}, nil
}

func (d *fakeDevice) FreeMemory(mem any) {
	delete(d.memories, mem.(*fakeMemory).id)
}

func (d *fakeDevice) MapMemory(mem any, offset, size uint64) ([]byte, error) {
	d.mapCalls++
	data, ok := d.memories[mem.(*fakeMemory).id]
	if !ok {
		return nil, fmt.Errorf("fake: unknown memory %d", mem.(*fakeMemory).id)
	}
	return data[offset : offset+size], nil
}

func (d *fakeDevice) UnmapMemory(any) { d.unmapCalls++ }

// typeBits allows both types unless the usage asks for mapping.
func typeBits(mappable bool) uint32 {
	if mappable {
		return 0b10
	}
	return 0b11
}

func (d *fakeDevice) CreateBuffer(desc BufferDesc) (any, Requirements, error) {
	d.nextID++
	d.live[d.nextID] = desc.Label
	mappable := desc.Usage.Contains(gputypes.BufferUsageMapWrite) || desc.Usage.Contains(gputypes.BufferUsageMapRead)
	return &fakeResource{id: d.nextID}, Requirements{
		Size:      desc.Size,
		Alignment: d.alignment,
		TypeBits:  typeBits(mappable),
	}, nil
}

func (d *fakeDevice) BindBufferMemory(buffer, mem any, _ uint64) error {
	d.bound[buffer.(*fakeResource).id] = mem.(*fakeMemory).id
	return nil
}

func (d *fakeDevice) DestroyBuffer(buffer any) {
	delete(d.live, buffer.(*fakeResource).id)
}

func (d *fakeDevice) CreateImage(desc ImageDesc) (any, Requirements, error) {
	d.nextID++
	d.live[d.nextID] = desc.Label
	return &fakeResource{id: d.nextID}, Requirements{
		Size:      uint64(desc.Width) * uint64(desc.Height) * 4,
		Alignment: 256,
		TypeBits:  0b01,
	}, nil
}

func (d *fakeDevice) BindImageMemory(image, mem any, _ uint64) error {
	d.bound[image.(*fakeResource).id] = mem.(*fakeMemory).id
	return nil
}

func (d *fakeDevice) DestroyImage(image any) {
	delete(d.live, image.(*fakeResource).id)
}
