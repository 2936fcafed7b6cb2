package native

import (
	"testing"

	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"
)

// recordingDevice is a noop HAL device that counts live objects and hands out
// recording encoders.
type recordingDevice struct {
	*noop.Device

	buffers  int
	textures int
	views    int
	freed    int
	encoders []*recordingEncoder
}

func (d *recordingDevice) CreateBuffer(desc *hal.BufferDescriptor) (hal.Buffer, error) {
	d.buffers++
	return d.Device.CreateBuffer(desc)
}

func (d *recordingDevice) DestroyBuffer(b hal.Buffer) { d.buffers-- }

func (d *recordingDevice) CreateTexture(desc *hal.TextureDescriptor) (hal.Texture, error) {
	d.textures++
	return d.Device.CreateTexture(desc)
}

func (d *recordingDevice) DestroyTexture(t hal.Texture) { d.textures-- }

func (d *recordingDevice) CreateTextureView(t hal.Texture, desc *hal.TextureViewDescriptor) (hal.TextureView, error) {
	d.views++
	return &halView{label: desc.Label}, nil
}

func (d *recordingDevice) DestroyTextureView(v hal.TextureView) { d.views-- }

func (d *recordingDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	e := &recordingEncoder{CommandEncoder: &noop.CommandEncoder{}, label: desc.Label}
	d.encoders = append(d.encoders, e)
	return e, nil
}

func (d *recordingDevice) FreeCommandBuffer(hal.CommandBuffer) { d.freed++ }

// halView is a view with identity, unlike the zero-size noop resource.
type halView struct {
	noop.Resource
	label string
}

type recordingEncoder struct {
	*noop.CommandEncoder

	label     string
	begun     int
	discarded int
	passes   []*hal.RenderPassDescriptor
	textures []hal.TextureBarrier
	buffers  []hal.BufferBarrier
}

func (e *recordingEncoder) BeginEncoding(label string) error {
	e.begun++
	return e.CommandEncoder.BeginEncoding(label)
}

func (e *recordingEncoder) DiscardEncoding() {
	e.discarded++
	e.CommandEncoder.DiscardEncoding()
}

func (e *recordingEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	e.passes = append(e.passes, desc)
	return e.CommandEncoder.BeginRenderPass(desc)
}

func (e *recordingEncoder) TransitionTextures(barriers []hal.TextureBarrier) {
	e.textures = append(e.textures, barriers...)
}

func (e *recordingEncoder) TransitionBuffers(barriers []hal.BufferBarrier) {
	e.buffers = append(e.buffers, barriers...)
}

// pollingQueue completes a submission only after a number of polls.
type pollingQueue struct {
	*noop.Queue

	submitted uint64
	completed uint64
	// delay is the number of polls before a submission completes; negative
	// never completes.
	delay int
	polls int
}

func (q *pollingQueue) Submit(cbs []hal.CommandBuffer) (uint64, error) {
	q.submitted++
	q.polls = 0
	return q.submitted, nil
}

func (q *pollingQueue) PollCompleted() uint64 {
	q.polls++
	if q.delay >= 0 && q.polls > q.delay {
		q.completed = q.submitted
	}
	return q.completed
}

func newTestDevice(t *testing.T, opts ...DeviceOption) (*Device, *recordingDevice) {
	t.Helper()
	raw := &recordingDevice{Device: &noop.Device{}}
	d, err := NewDevice(raw, &noop.Queue{}, opts...)
	if err != nil {
		t.Fatalf("NewDevice() error = %v", err)
	}
	return d, raw
}
