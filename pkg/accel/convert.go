package accel

// The conversions here are BT.601 "studio swing" (Y in [16,235]), in 10 bit fixed point.
// This is what camera pipelines produce for YUV_420_888 and YUV420P.

func clampFixed(v int32) uint8 {
	if v < 0 {
		return 0
	}
	if v > 262143 {
		return 255
	}
	return uint8(v >> 10)
}

// YUVToRGB converts a single pixel
func YUVToRGB(y, u, v uint8) (r, g, b uint8) {
	yy := int32(y) - 16
	if yy < 0 {
		yy = 0
	}
	uu := int32(u) - 128
	vv := int32(v) - 128
	a0 := 1192 * yy
	r = clampFixed(a0 + 1634*vv)
	g = clampFixed(a0 - 833*vv - 400*uu)
	b = clampFixed(a0 + 2066*uu)
	return
}

// RGBToYUV converts a single pixel
func RGBToYUV(r, g, b uint8) (y, u, v uint8) {
	ri, gi, bi := int32(r), int32(g), int32(b)
	y = uint8(((66*ri + 129*gi + 25*bi + 128) >> 8) + 16)
	u = uint8(((-38*ri - 74*gi + 112*bi + 128) >> 8) + 128)
	v = uint8(((112*ri - 94*gi - 18*bi + 128) >> 8) + 128)
	return
}

// YUV420pToRGB transcodes a whole frame into a 24-bit RGB buffer
func YUV420pToRGB(width, height int, y, u, v []byte, strideY, strideU, strideV, strideRGB int, rgb []byte) {
	for py := 0; py < height; py++ {
		yRow := y[py*strideY:]
		uRow := u[(py/2)*strideU:]
		vRow := v[(py/2)*strideV:]
		out := rgb[py*strideRGB:]
		for px := 0; px < width; px++ {
			r, g, b := YUVToRGB(yRow[px], uRow[px/2], vRow[px/2])
			out[px*3] = r
			out[px*3+1] = g
			out[px*3+2] = b
		}
	}
}

// RGBToYUV420p transcodes a 24-bit RGB buffer into YUV420p.
// Chroma is the average of each 2x2 block. Width and height must be even.
func RGBToYUV420p(width, height int, rgb []byte, strideRGB int, y, u, v []byte, strideY, strideU, strideV int) {
	for py := 0; py < height; py++ {
		in := rgb[py*strideRGB:]
		out := y[py*strideY:]
		for px := 0; px < width; px++ {
			yy, _, _ := RGBToYUV(in[px*3], in[px*3+1], in[px*3+2])
			out[px] = yy
		}
	}
	for py := 0; py < height/2; py++ {
		row0 := rgb[(py*2)*strideRGB:]
		row1 := rgb[(py*2+1)*strideRGB:]
		uOut := u[py*strideU:]
		vOut := v[py*strideV:]
		for px := 0; px < width/2; px++ {
			var su, sv int32
			for _, row := range [2][]byte{row0, row1} {
				for dx := 0; dx < 2; dx++ {
					i := (px*2 + dx) * 3
					_, cu, cv := RGBToYUV(row[i], row[i+1], row[i+2])
					su += int32(cu)
					sv += int32(cv)
				}
			}
			uOut[px] = uint8((su + 2) / 4)
			vOut[px] = uint8((sv + 2) / 4)
		}
	}
}
