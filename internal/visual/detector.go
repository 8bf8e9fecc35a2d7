package visual

import (
	"context"
	"image"
	_ "image/jpeg" // page renders
	_ "image/png"
	"os"

	"golang.org/x/image/draw"

	"github.com/spherical/slide-creator/internal/domain"
)

const (
	minChartArea  = 5000
	minTableArea  = 3000
	minLineLength = 40
	edgeThreshold = 200
	darkThreshold = 128
	tableScore    = 0.8
)

// Detector finds chart and table regions on rendered pages
type Detector struct {
	cfg Config
}

// NewDetector creates a Detector
func NewDetector(cfg Config) *Detector {
	return &Detector{cfg: cfg}
}

// DetectPages runs Detect over every page image
func (d *Detector) DetectPages(ctx context.Context, pages []domain.PageImage) ([]domain.VisualElement, error) {
	var out []domain.VisualElement
	for _, page := range pages {
		if err := ctx.Err(); err != nil {
			return nil, domain.CancelledError("visual detection cancelled", err)
		}
		elements, err := d.Detect(page.ImagePath, page.PageNumber)
		if err != nil {
			return nil, err
		}
		out = append(out, elements...)
	}
	return out, nil
}

// Detect decodes one page image and returns the chart and table regions on it,
// with bounding boxes in the original image's pixel space.
func (d *Detector) Detect(path string, page int) ([]domain.VisualElement, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, domain.IOError("failed to open page image", err)
	}
	defer f.Close()

	img, _, err := image.Decode(f)
	if err != nil {
		return nil, domain.ConversionError("failed to decode page image", err)
	}

	gray, scale := d.prepare(img)

	tables := detectTables(gray)
	charts := detectCharts(gray, d.cfg.ChartThreshold, tables)

	var out []domain.VisualElement
	for _, t := range tables {
		out = append(out, domain.VisualElement{
			ImagePath:   path,
			PageNumber:  page,
			BBox:        rescale(t.box, scale),
			ElementType: domain.ElementTable,
			Features:    map[string]float64{"grid_strength": t.strength},
			Confidence:  tableScore,
		})
	}
	for _, c := range charts {
		out = append(out, domain.VisualElement{
			ImagePath:   path,
			PageNumber:  page,
			BBox:        rescale(c.box, scale),
			ElementType: domain.ElementChart,
			Features:    map[string]float64{"edge_density": c.density, "line_count": float64(c.lines)},
			Confidence:  c.confidence,
		})
	}
	return out, nil
}

// prepare converts img to grayscale, downscaling wide pages to the detection width.
// It returns the factor that maps detection coordinates back to the source.
func (d *Detector) prepare(img image.Image) (*image.Gray, float64) {
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	scale := 1.0
	if d.cfg.DetectionWidth > 0 && w > d.cfg.DetectionWidth {
		scale = float64(w) / float64(d.cfg.DetectionWidth)
		w = d.cfg.DetectionWidth
		h = int(float64(h) / scale)
		if h < 1 {
			h = 1
		}
	}
	gray := image.NewGray(image.Rect(0, 0, w, h))
	draw.ApproxBiLinear.Scale(gray, gray.Bounds(), img, b, draw.Src, nil)
	return gray, scale
}

func rescale(r image.Rectangle, scale float64) domain.BoundingBox {
	return domain.BoundingBox{
		X:      int(float64(r.Min.X) * scale),
		Y:      int(float64(r.Min.Y) * scale),
		Width:  int(float64(r.Dx()) * scale),
		Height: int(float64(r.Dy()) * scale),
	}
}

type tableRegion struct {
	box      image.Rectangle
	strength float64
}

type chartRegion struct {
	box        image.Rectangle
	density    float64
	lines      int
	confidence float64
}

// detectTables keeps dark pixels that belong to long horizontal or vertical
// runs and reports connected grids with at least two lines each way.
func detectTables(gray *image.Gray) []tableRegion {
	dark := threshold(gray, func(v uint8) bool { return v < darkThreshold })
	horiz := longRuns(dark, true)
	vert := longRuns(dark, false)

	grid := newMask(dark.w, dark.h)
	for i := range grid.px {
		grid.px[i] = horiz.px[i] || vert.px[i]
	}

	var out []tableRegion
	for _, comp := range components(grid) {
		if comp.box.Dx()*comp.box.Dy() <= minTableArea {
			continue
		}
		if countLines(horiz, comp.box, true) < 2 || countLines(vert, comp.box, false) < 2 {
			continue
		}
		out = append(out, tableRegion{
			box:      comp.box,
			strength: float64(comp.size) / float64(comp.box.Dx()*comp.box.Dy()),
		})
	}
	return out
}

// detectCharts looks for large edge regions with moderate density and
// axis-like straight lines. Regions inside a detected table are skipped.
func detectCharts(gray *image.Gray, minConfidence float64, tables []tableRegion) []chartRegion {
	edges := dilate(sobel(gray))

	var out []chartRegion
	for _, comp := range components(edges) {
		area := comp.box.Dx() * comp.box.Dy()
		if area <= minChartArea || overlapsTable(comp.box, tables) {
			continue
		}
		density := float64(edges.count(comp.box)) / float64(area)
		lines := countLines(edges, comp.box, true) + countLines(edges, comp.box, false)
		confidence := density*10 + float64(lines)*0.1
		if confidence > 1 {
			confidence = 1
		}
		if confidence > minConfidence {
			out = append(out, chartRegion{box: comp.box, density: density, lines: lines, confidence: confidence})
		}
	}
	return out
}

func overlapsTable(r image.Rectangle, tables []tableRegion) bool {
	for _, t := range tables {
		inter := r.Intersect(t.box)
		if inter.Empty() {
			continue
		}
		if float64(inter.Dx()*inter.Dy()) > 0.5*float64(r.Dx()*r.Dy()) {
			return true
		}
	}
	return false
}

type mask struct {
	w, h int
	px   []bool
}

func newMask(w, h int) *mask {
	return &mask{w: w, h: h, px: make([]bool, w*h)}
}

func (m *mask) at(x, y int) bool { return m.px[y*m.w+x] }

func (m *mask) set(x, y int) { m.px[y*m.w+x] = true }

func (m *mask) count(r image.Rectangle) int {
	n := 0
	for y := r.Min.Y; y < r.Max.Y; y++ {
		for x := r.Min.X; x < r.Max.X; x++ {
			if m.at(x, y) {
				n++
			}
		}
	}
	return n
}

func threshold(gray *image.Gray, keep func(uint8) bool) *mask {
	b := gray.Bounds()
	m := newMask(b.Dx(), b.Dy())
	for y := 0; y < m.h; y++ {
		for x := 0; x < m.w; x++ {
			if keep(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y) {
				m.set(x, y)
			}
		}
	}
	return m
}

// sobel marks pixels whose gradient magnitude exceeds edgeThreshold
func sobel(gray *image.Gray) *mask {
	b := gray.Bounds()
	m := newMask(b.Dx(), b.Dy())
	v := func(x, y int) int { return int(gray.GrayAt(b.Min.X+x, b.Min.Y+y).Y) }
	for y := 1; y < m.h-1; y++ {
		for x := 1; x < m.w-1; x++ {
			gx := -v(x-1, y-1) - 2*v(x-1, y) - v(x-1, y+1) + v(x+1, y-1) + 2*v(x+1, y) + v(x+1, y+1)
			gy := -v(x-1, y-1) - 2*v(x, y-1) - v(x+1, y-1) + v(x-1, y+1) + 2*v(x, y+1) + v(x+1, y+1)
			if abs(gx)+abs(gy) > edgeThreshold {
				m.set(x, y)
			}
		}
	}
	return m
}

func dilate(in *mask) *mask {
	out := newMask(in.w, in.h)
	for y := 0; y < in.h; y++ {
		for x := 0; x < in.w; x++ {
			if !in.at(x, y) {
				continue
			}
			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx >= 0 && ny >= 0 && nx < in.w && ny < in.h {
						out.set(nx, ny)
					}
				}
			}
		}
	}
	return out
}

// longRuns keeps pixels in horizontal (or vertical) runs of at least minLineLength
func longRuns(in *mask, horizontal bool) *mask {
	out := newMask(in.w, in.h)
	outer, inner := in.h, in.w
	if !horizontal {
		outer, inner = in.w, in.h
	}
	at := func(o, i int) bool {
		if horizontal {
			return in.at(i, o)
		}
		return in.at(o, i)
	}
	set := func(o, i int) {
		if horizontal {
			out.set(i, o)
		} else {
			out.set(o, i)
		}
	}

	for o := 0; o < outer; o++ {
		start := -1
		for i := 0; i <= inner; i++ {
			if i < inner && at(o, i) {
				if start < 0 {
					start = i
				}
				continue
			}
			if start >= 0 && i-start >= minLineLength {
				for k := start; k < i; k++ {
					set(o, k)
				}
			}
			start = -1
		}
	}
	return out
}

// countLines counts groups of adjacent rows (or columns) inside r whose
// coverage spans at least half of r.
func countLines(m *mask, r image.Rectangle, horizontal bool) int {
	lines := 0
	inLine := false

	outerMin, outerMax, span := r.Min.Y, r.Max.Y, r.Dx()
	if !horizontal {
		outerMin, outerMax, span = r.Min.X, r.Max.X, r.Dy()
	}

	for o := outerMin; o < outerMax; o++ {
		n := 0
		if horizontal {
			for x := r.Min.X; x < r.Max.X; x++ {
				if m.at(x, o) {
					n++
				}
			}
		} else {
			for y := r.Min.Y; y < r.Max.Y; y++ {
				if m.at(o, y) {
					n++
				}
			}
		}
		full := span > 0 && n*2 >= span
		if full && !inLine {
			lines++
		}
		inLine = full
	}
	return lines
}

type component struct {
	box  image.Rectangle
	size int
}

// components labels 8-connected regions of m
func components(m *mask) []component {
	seen := make([]bool, len(m.px))
	var out []component
	var stack []int

	for start, on := range m.px {
		if !on || seen[start] {
			continue
		}
		seen[start] = true
		stack = append(stack[:0], start)
		minX, minY := m.w, m.h
		maxX, maxY := -1, -1
		size := 0

		for len(stack) > 0 {
			p := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			x, y := p%m.w, p/m.w
			size++
			minX, maxX = min(minX, x), max(maxX, x)
			minY, maxY = min(minY, y), max(maxY, y)

			for dy := -1; dy <= 1; dy++ {
				for dx := -1; dx <= 1; dx++ {
					nx, ny := x+dx, y+dy
					if nx < 0 || ny < 0 || nx >= m.w || ny >= m.h {
						continue
					}
					q := ny*m.w + nx
					if m.px[q] && !seen[q] {
						seen[q] = true
						stack = append(stack, q)
					}
				}
			}
		}

		out = append(out, component{
			box:  image.Rect(minX, minY, maxX+1, maxY+1),
			size: size,
		})
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
