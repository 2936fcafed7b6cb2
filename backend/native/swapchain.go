package native

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/framegraph"
	"github.com/gogpu/framegraph/memory"
)

// SurfaceConfig configures a SurfaceSwapchain.
type SurfaceConfig struct {
	Width          uint32
	Height         uint32
	Format         gputypes.TextureFormat
	PresentMode    gputypes.PresentMode
	AlphaMode      gputypes.CompositeAlphaMode
	FramesInFlight int
}

// SurfaceSwapchain presents to a HAL surface.
//
// The HAL hands out a new surface texture on every acquire, while compiled
// graphs cache framebuffers by view. The swapchain therefore exposes one
// stable proxy texture and view per frame slot and rebinds them to the
// acquired surface texture until it is presented.
type SurfaceSwapchain struct {
	device  *Device
	surface hal.Surface
	config  SurfaceConfig

	images  []*Texture
	views   []*View
	current []hal.SurfaceTexture
}

var _ framegraph.Swapchain = (*SurfaceSwapchain)(nil)

// NewSurfaceSwapchain configures surface and creates the proxies.
func NewSurfaceSwapchain(device *Device, surface hal.Surface, config SurfaceConfig) (*SurfaceSwapchain, error) {
	if device == nil || surface == nil {
		return nil, errors.Wrap(ErrNilHAL, "NewSurfaceSwapchain")
	}
	if config.FramesInFlight <= 0 {
		config.FramesInFlight = 2
	}
	if config.Format == gputypes.TextureFormatUndefined {
		config.Format = gputypes.TextureFormatBGRA8Unorm
	}
	if config.PresentMode == 0 {
		config.PresentMode = gputypes.PresentModeFifo
	}
	if config.AlphaMode == 0 {
		config.AlphaMode = gputypes.CompositeAlphaModeOpaque
	}
	s := &SurfaceSwapchain{
		device:  device,
		surface: surface,
		current: make([]hal.SurfaceTexture, config.FramesInFlight),
	}
	if err := s.configure(config); err != nil {
		return nil, err
	}
	for i := range config.FramesInFlight {
		label := fmt.Sprintf("surface[%d]", i)
		desc := memory.ImageDesc{
			Label:  label,
			Width:  config.Width,
			Height: config.Height,
			Format: config.Format,
			Usage:  gputypes.TextureUsageRenderAttachment,
		}
		img := &Texture{label: label, desc: desc}
		s.images = append(s.images, img)
		s.views = append(s.views, &View{label: label, texture: img})
	}
	return s, nil
}

func (s *SurfaceSwapchain) configure(config SurfaceConfig) error {
	err := s.surface.Configure(s.device.device, &hal.SurfaceConfiguration{
		Width:       config.Width,
		Height:      config.Height,
		Format:      config.Format,
		Usage:       gputypes.TextureUsageRenderAttachment,
		PresentMode: config.PresentMode,
		AlphaMode:   config.AlphaMode,
	})
	if err != nil {
		return errors.Wrapf(err, "native: configure surface %dx%d", config.Width, config.Height)
	}
	s.config = config
	return nil
}

// Extent returns the configured surface size.
func (s *SurfaceSwapchain) Extent() framegraph.Extent {
	return framegraph.Extent{Width: s.config.Width, Height: s.config.Height}
}

// Format returns the surface format.
func (s *SurfaceSwapchain) Format() gputypes.TextureFormat { return s.config.Format }

// FramesInFlight returns the number of frame slots.
func (s *SurfaceSwapchain) FramesInFlight() int { return s.config.FramesInFlight }

// ImageCount returns the number of proxies, one per frame slot.
func (s *SurfaceSwapchain) ImageCount() int { return len(s.images) }

// Image returns the proxy texture at index.
func (s *SurfaceSwapchain) Image(index int) any { return s.images[index] }

// ImageView returns the proxy view at index.
func (s *SurfaceSwapchain) ImageView(index int) framegraph.ImageView { return s.views[index] }

// AcquireNextImage acquires a surface texture and binds it to the slot's
// proxy. An outdated, lost or suboptimal surface reports
// framegraph.ErrSurfaceOutdated.
func (s *SurfaceSwapchain) AcquireNextImage(slot int) (int, error) {
	index := slot % len(s.images)
	s.release(index)

	acquired, err := s.surface.AcquireTexture(nil)
	if err != nil {
		if errors.Is(err, hal.ErrSurfaceOutdated) || errors.Is(err, hal.ErrSurfaceLost) {
			return -1, errors.Mark(errors.Wrap(err, "native: acquire"), framegraph.ErrSurfaceOutdated)
		}
		return -1, errors.Wrap(err, "native: acquire")
	}
	if acquired.Suboptimal {
		s.surface.DiscardTexture(acquired.Texture)
		return -1, errors.Wrap(framegraph.ErrSurfaceOutdated, "native: surface suboptimal")
	}

	view, err := s.device.createView(acquired.Texture, framegraph.ImageViewDesc{
		Label:  s.views[index].label,
		Format: s.config.Format,
	})
	if err != nil {
		s.surface.DiscardTexture(acquired.Texture)
		return -1, err
	}
	s.current[index] = acquired.Texture
	s.images[index].raw = acquired.Texture
	s.views[index].raw = view
	return index, nil
}

// Present presents the surface texture bound to imageIndex.
func (s *SurfaceSwapchain) Present(slot, imageIndex int) error {
	tex := s.current[imageIndex]
	if tex == nil {
		return errors.Newf("native: present slot %d: image %d was not acquired", slot, imageIndex)
	}
	err := s.device.queue.Present(s.surface, tex, nil)
	s.current[imageIndex] = nil
	s.release(imageIndex)
	if err != nil {
		if errors.Is(err, hal.ErrSurfaceOutdated) || errors.Is(err, hal.ErrSurfaceLost) {
			return errors.Mark(errors.Wrap(err, "native: present"), framegraph.ErrSurfaceOutdated)
		}
		return errors.Wrap(err, "native: present")
	}
	return nil
}

// release drops the proxy binding of index, discarding an unpresented
// surface texture.
func (s *SurfaceSwapchain) release(index int) {
	if tex := s.current[index]; tex != nil {
		s.surface.DiscardTexture(tex)
		s.current[index] = nil
	}
	if v := s.views[index]; v.raw != nil {
		s.device.device.DestroyTextureView(v.raw)
		v.raw = nil
	}
	s.images[index].raw = nil
}

// Resize reconfigures the surface. Call RenderGraph.Resize afterwards.
func (s *SurfaceSwapchain) Resize(width, height uint32) error {
	for i := range s.images {
		s.release(i)
	}
	config := s.config
	config.Width, config.Height = width, height
	if err := s.configure(config); err != nil {
		return err
	}
	for _, img := range s.images {
		img.desc.Width, img.desc.Height = width, height
	}
	return nil
}

// Destroy releases the proxies and unconfigures the surface.
func (s *SurfaceSwapchain) Destroy() {
	for i := range s.images {
		s.release(i)
	}
	s.surface.Unconfigure(s.device.device)
}

// OffscreenSwapchain is a ring of device textures standing in for a
// surface. It serves headless rendering and tests.
type OffscreenSwapchain struct {
	device *Device
	extent framegraph.Extent
	format gputypes.TextureFormat
	frames int

	images    []*Texture
	views     []*View
	next      int
	presented []int
}

var _ framegraph.Swapchain = (*OffscreenSwapchain)(nil)

// NewOffscreenSwapchain creates frames render targets of the given size.
func NewOffscreenSwapchain(device *Device, extent framegraph.Extent, format gputypes.TextureFormat, frames int) (*OffscreenSwapchain, error) {
	if device == nil {
		return nil, errors.Wrap(ErrNilHAL, "NewOffscreenSwapchain")
	}
	if frames <= 0 {
		frames = 2
	}
	s := &OffscreenSwapchain{device: device, extent: extent, format: format, frames: frames}
	if err := s.create(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *OffscreenSwapchain) create() error {
	for i := range s.frames {
		label := fmt.Sprintf("offscreen[%d]", i)
		img, _, err := s.device.CreateImage(memory.ImageDesc{
			Label:  label,
			Width:  s.extent.Width,
			Height: s.extent.Height,
			Format: s.format,
			Usage: gputypes.TextureUsageRenderAttachment |
				gputypes.TextureUsageTextureBinding |
				gputypes.TextureUsageCopySrc,
		})
		if err != nil {
			s.destroy()
			return err
		}
		view, err := s.device.CreateImageView(img, framegraph.ImageViewDesc{Label: label, Format: s.format})
		if err != nil {
			s.device.DestroyImage(img)
			s.destroy()
			return err
		}
		s.images = append(s.images, img.(*Texture))
		s.views = append(s.views, view.(*View))
	}
	return nil
}

func (s *OffscreenSwapchain) destroy() {
	for _, v := range s.views {
		s.device.DestroyImageView(v)
	}
	for _, img := range s.images {
		s.device.DestroyImage(img)
	}
	s.views, s.images = nil, nil
}

// Extent returns the target size.
func (s *OffscreenSwapchain) Extent() framegraph.Extent { return s.extent }

// Format returns the target format.
func (s *OffscreenSwapchain) Format() gputypes.TextureFormat { return s.format }

// FramesInFlight returns the number of frame slots.
func (s *OffscreenSwapchain) FramesInFlight() int { return s.frames }

// ImageCount returns the number of targets.
func (s *OffscreenSwapchain) ImageCount() int { return len(s.images) }

// Image returns the target texture at index.
func (s *OffscreenSwapchain) Image(index int) any { return s.images[index] }

// ImageView returns the target view at index.
func (s *OffscreenSwapchain) ImageView(index int) framegraph.ImageView { return s.views[index] }

// AcquireNextImage returns the targets round-robin.
func (s *OffscreenSwapchain) AcquireNextImage(int) (int, error) {
	index := s.next
	s.next = (s.next + 1) % len(s.images)
	return index, nil
}

// Present records the presented index.
func (s *OffscreenSwapchain) Present(_, imageIndex int) error {
	s.presented = append(s.presented, imageIndex)
	return nil
}

// Presented returns the indices presented so far.
func (s *OffscreenSwapchain) Presented() []int { return s.presented }

// Texture returns the target at index for readback.
func (s *OffscreenSwapchain) Texture(index int) *Texture { return s.images[index] }

// Resize recreates the targets at a new size.
func (s *OffscreenSwapchain) Resize(extent framegraph.Extent) error {
	s.destroy()
	s.extent = extent
	s.next = 0
	return s.create()
}

// Destroy releases the targets.
func (s *OffscreenSwapchain) Destroy() { s.destroy() }
