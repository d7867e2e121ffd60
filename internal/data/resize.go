package data

// resizeBilinear resamples one channel of size inH x inW to outH x outW with
// half-pixel centers, clamping at the borders.
func resizeBilinear(src []float32, inH, inW int, dst []float32, outH, outW int) {
	scaleY := float64(inH) / float64(outH)
	scaleX := float64(inW) / float64(outW)

	for y := 0; y < outH; y++ {
		sy := clampCoord((float64(y)+0.5)*scaleY-0.5, inH)
		y0 := int(sy)
		y1 := min(y0+1, inH-1)
		fy := float32(sy - float64(y0))

		for x := 0; x < outW; x++ {
			sx := clampCoord((float64(x)+0.5)*scaleX-0.5, inW)
			x0 := int(sx)
			x1 := min(x0+1, inW-1)
			fx := float32(sx - float64(x0))

			top := src[y0*inW+x0]*(1-fx) + src[y0*inW+x1]*fx
			bottom := src[y1*inW+x0]*(1-fx) + src[y1*inW+x1]*fx
			dst[y*outW+x] = top*(1-fy) + bottom*fy
		}
	}
}

func clampCoord(v float64, n int) float64 {
	if v < 0 {
		return 0
	}
	if hi := float64(n - 1); v > hi {
		return hi
	}
	return v
}
