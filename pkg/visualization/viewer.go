// Package visualization renders QA previews of an exported study: axial slices of the
// reference image with structure masks and contours drawn on top.
package visualization

import (
	"fmt"
	"image"
	"image/color"
	"image/png"
	"math"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"rtstudyexport/internal/models"
	"rtstudyexport/pkg/geometry"
)

// maskOpacity is the weight of the structure color over the image in mask voxels
const maskOpacity = 0.4

// Viewer draws slices of a reference image and the structures exported on it
type Viewer struct {
	// image is the normalized reference image
	image *models.VolumeGrid

	// structures are drawn in order, later ones on top
	structures []models.Structure

	// worldToIndex maps contour points back to image indices
	worldToIndex geometry.Matrix4

	// min and max are the display window
	min, max float64
}

// NewViewer creates a viewer for img. The window spans the full intensity range.
func NewViewer(img *models.VolumeGrid, structures []models.Structure) (*Viewer, error) {
	if img.Empty() {
		return nil, fmt.Errorf("image has no samples")
	}
	inv, err := img.IndexToWorld.Inverse()
	if err != nil {
		return nil, fmt.Errorf("image geometry: %w", err)
	}
	min, max := img.Range()
	return &Viewer{
		image:        img,
		structures:   structures,
		worldToIndex: inv,
		min:          min,
		max:          max,
	}, nil
}

// SliceCount returns the number of axial slices
func (v *Viewer) SliceCount() int {
	_, _, nz := v.image.Dims()
	return nz
}

// ExtractSlice returns axial slice k (relative to the first slice) as a grayscale image.
// Row 0 of the image is the first row of the volume.
func (v *Viewer) ExtractSlice(k int) (*image.Gray, error) {
	nx, ny, nz := v.image.Dims()
	if k < 0 || k >= nz {
		return nil, fmt.Errorf("slice %d outside 0..%d", k, nz-1)
	}

	e := v.image.Extent
	img := image.NewGray(image.Rect(0, 0, nx, ny))
	for y := 0; y < ny; y++ {
		for x := 0; x < nx; x++ {
			value := v.image.At(e[0]+x, e[2]+y, e[4]+k)
			img.SetGray(x, y, color.Gray{Y: v.gray(value)})
		}
	}
	return img, nil
}

func (v *Viewer) gray(value float64) uint8 {
	if v.max <= v.min {
		return 0
	}
	t := (value - v.min) / (v.max - v.min)
	return uint8(math.Round(255 * math.Max(0, math.Min(1, t))))
}

// RenderSlice draws slice k with mask structures blended in and contour structures
// outlined in their colors
func (v *Viewer) RenderSlice(k int) (*image.RGBA, error) {
	gray, err := v.ExtractSlice(k)
	if err != nil {
		return nil, err
	}
	out := image.NewRGBA(gray.Bounds())
	draw.Draw(out, out.Bounds(), gray, image.Point{}, draw.Src)

	for i := range v.structures {
		st := &v.structures[i]
		c := toRGBA(st.Color)
		if st.IsMask() {
			v.drawMask(out, st.Mask, k, c)
			continue
		}
		for _, sc := range st.Slices {
			if sc.SliceIndex != k {
				continue
			}
			for _, contour := range sc.Contours {
				v.drawContour(out, contour, c)
			}
		}
	}
	return out, nil
}

func (v *Viewer) drawMask(out *image.RGBA, mask *models.VolumeGrid, k int, c color.RGBA) {
	if mask.Extent != v.image.Extent {
		return
	}
	e := mask.Extent
	bounds := out.Bounds()
	for y := 0; y < bounds.Dy(); y++ {
		for x := 0; x < bounds.Dx(); x++ {
			if mask.At(e[0]+x, e[2]+y, e[4]+k) == 0 {
				continue
			}
			out.SetRGBA(x, y, blend(out.RGBAAt(x, y), c, maskOpacity))
		}
	}
}

func (v *Viewer) drawContour(out *image.RGBA, contour models.Contour, c color.RGBA) {
	n := len(contour.Points)
	if n == 0 {
		return
	}
	segments := n - 1
	if contour.Closed {
		segments = n
	}
	e := v.image.Extent
	pixel := func(p geometry.Vec3) (float64, float64) {
		idx := v.worldToIndex.Apply(p)
		return idx.X - float64(e[0]), idx.Y - float64(e[2])
	}
	if segments == 0 {
		x, y := pixel(contour.Points[0])
		out.SetRGBA(int(math.Round(x)), int(math.Round(y)), c)
		return
	}
	for i := 0; i < segments; i++ {
		x0, y0 := pixel(contour.Points[i])
		x1, y1 := pixel(contour.Points[(i+1)%n])
		drawLine(out, x0, y0, x1, y1, c)
	}
}

// drawLine plots a line by stepping one pixel at a time along its longer axis
func drawLine(out *image.RGBA, x0, y0, x1, y1 float64, c color.RGBA) {
	steps := int(math.Ceil(math.Max(math.Abs(x1-x0), math.Abs(y1-y0))))
	if steps == 0 {
		out.SetRGBA(int(math.Round(x0)), int(math.Round(y0)), c)
		return
	}
	for s := 0; s <= steps; s++ {
		t := float64(s) / float64(steps)
		x := int(math.Round(x0 + t*(x1-x0)))
		y := int(math.Round(y0 + t*(y1-y0)))
		out.SetRGBA(x, y, c)
	}
}

func toRGBA(c models.Color) color.RGBA {
	channel := func(f float64) uint8 {
		return uint8(math.Round(255 * math.Max(0, math.Min(1, f))))
	}
	return color.RGBA{R: channel(c.R), G: channel(c.G), B: channel(c.B), A: 255}
}

func blend(base, over color.RGBA, alpha float64) color.RGBA {
	mix := func(a, b uint8) uint8 {
		return uint8(math.Round(float64(a)*(1-alpha) + float64(b)*alpha))
	}
	return color.RGBA{R: mix(base.R, over.R), G: mix(base.G, over.G), B: mix(base.B, over.B), A: 255}
}

// ScaleImage resizes img to width pixels. The height follows the physical aspect
// ratio of the slice, so anisotropic pixels come out square.
func (v *Viewer) ScaleImage(img image.Image, width int) image.Image {
	bounds := img.Bounds()
	sp := v.image.Spacing()
	aspect := (float64(bounds.Dy()) * sp[1]) / (float64(bounds.Dx()) * sp[0])
	height := int(math.Max(1, math.Round(aspect*float64(width))))

	dst := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.ApproxBiLinear.Scale(dst, dst.Rect, img, bounds, draw.Over, nil)
	return dst
}

// SaveSlice saves an image as PNG
func (v *Viewer) SaveSlice(img image.Image, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return err
	}
	if err := png.Encode(file, img); err != nil {
		file.Close()
		return err
	}
	return file.Close()
}

// SaveSliceSequence renders every slice, scales it to width pixels and writes
// slice_NNN.png files to outputDir
func (v *Viewer) SaveSliceSequence(outputDir string, width int) error {
	if width <= 0 {
		return fmt.Errorf("preview width must be positive, got %d", width)
	}
	if err := os.MkdirAll(outputDir, 0755); err != nil {
		return err
	}

	for k := 0; k < v.SliceCount(); k++ {
		img, err := v.RenderSlice(k)
		if err != nil {
			return err
		}
		filename := filepath.Join(outputDir, fmt.Sprintf("slice_%03d.png", k))
		if err := v.SaveSlice(v.ScaleImage(img, width), filename); err != nil {
			return fmt.Errorf("failed to save slice %d: %w", k, err)
		}
	}
	return nil
}
