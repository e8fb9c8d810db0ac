package dem

import (
	"image"
	"math"
)

// Stats summarizes the elevations decoded from a source tile
type Stats struct {
	Width, Height int
	Min, Max      float64
	Mean          float64
	NoData        int
}

// Summarize computes elevation statistics for a source tile
func (e Encoding) Summarize(img image.Image) Stats {
	b := img.Bounds()
	st := Stats{
		Width:  b.Dx(),
		Height: b.Dy(),
		Min:    math.Inf(1),
		Max:    math.Inf(-1),
	}

	src := toNRGBA(img)
	var sum float64
	var n int
	for y := 0; y < st.Height; y++ {
		row := src.Pix[y*src.Stride : y*src.Stride+st.Width*4]
		for i := 0; i < len(row); i += 4 {
			if IsNoData(row[i], row[i+1], row[i+2]) {
				st.NoData++
			}
			h := e.Elevation(row[i], row[i+1], row[i+2])
			st.Min = math.Min(st.Min, h)
			st.Max = math.Max(st.Max, h)
			sum += h
			n++
		}
	}

	if n == 0 {
		st.Min, st.Max = 0, 0
		return st
	}
	st.Mean = sum / float64(n)
	return st
}
