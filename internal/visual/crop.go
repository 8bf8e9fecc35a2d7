package visual

import (
	"fmt"
	"image"
	"image/png"
	"os"
	"path/filepath"

	"golang.org/x/image/draw"

	"github.com/spherical/slide-creator/internal/domain"
)

// cropPadding is added around the bounding box, in source pixels
const cropPadding = 10

// Crop cuts an element's bounding box out of its page image and writes it
// as PNG into dir. It returns the path of the new file.
func Crop(el domain.VisualElement, dir string) (string, error) {
	f, err := os.Open(el.ImagePath)
	if err != nil {
		return "", domain.IOError("failed to open page image", err)
	}
	defer f.Close()

	src, _, err := image.Decode(f)
	if err != nil {
		return "", domain.ConversionError("failed to decode page image", err)
	}

	box := image.Rect(el.BBox.X, el.BBox.Y, el.BBox.X+el.BBox.Width, el.BBox.Y+el.BBox.Height).
		Inset(-cropPadding).
		Intersect(src.Bounds())
	if box.Empty() {
		return "", domain.ValidationError(fmt.Sprintf("bounding box outside page %d", el.PageNumber), nil)
	}

	dst := image.NewRGBA(image.Rect(0, 0, box.Dx(), box.Dy()))
	draw.Copy(dst, image.Point{}, src, box, draw.Src, nil)

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", domain.IOError("failed to create crop directory", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("page_%d_%s_%d_%d.png", el.PageNumber, el.ElementType, el.BBox.X, el.BBox.Y))
	out, err := os.Create(path)
	if err != nil {
		return "", domain.IOError("failed to create crop file", err)
	}
	defer out.Close()

	if err := png.Encode(out, dst); err != nil {
		return "", domain.IOError("failed to encode crop", err)
	}
	return path, nil
}
