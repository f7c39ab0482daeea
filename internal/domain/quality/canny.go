package quality

// tan(22.5°), used to bucket gradient directions without atan.
const tan22 = 0.4142135623730950488016887242097

// countEdges runs a Canny detector (3×3 Sobel with replicated borders, L1
// magnitude, non-maximum suppression, hysteresis over 8-connected pixels) and
// returns the number of edge pixels.
func countEdges(pix []uint8, w, h int, low, high float64) int {
	n := w * h
	dx := make([]int32, n)
	dy := make([]int32, n)
	mag := make([]int32, n)

	p := func(row, col int) int32 { return int32(pix[row+col]) }

	for y := 0; y < h; y++ {
		y0 := clampIndex(y-1, h) * w
		y1 := y * w
		y2 := clampIndex(y+1, h) * w
		for x := 0; x < w; x++ {
			x0 := clampIndex(x-1, w)
			x2 := clampIndex(x+1, w)

			gx := (p(y0, x2) + 2*p(y1, x2) + p(y2, x2)) - (p(y0, x0) + 2*p(y1, x0) + p(y2, x0))
			gy := (p(y2, x0) + 2*p(y2, x) + p(y2, x2)) - (p(y0, x0) + 2*p(y0, x) + p(y0, x2))

			i := y1 + x
			dx[i], dy[i] = gx, gy
			mag[i] = abs32(gx) + abs32(gy)
		}
	}

	// magnitude outside the image counts as zero
	at := func(x, y int) int32 {
		if x < 0 || y < 0 || x >= w || y >= h {
			return 0
		}
		return mag[y*w+x]
	}

	const (
		weak   = 1
		strong = 2
	)
	state := make([]uint8, n)
	stack := make([]int, 0, 64)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*w + x
			m := mag[i]
			if float64(m) <= low {
				continue
			}

			ax := float64(abs32(dx[i]))
			ay := float64(abs32(dy[i]))
			tg22x := ax * tan22
			tg67x := tg22x + 2*ax

			var isMax bool
			switch {
			case ay < tg22x:
				isMax = m > at(x-1, y) && m >= at(x+1, y)
			case ay > tg67x:
				isMax = m > at(x, y-1) && m >= at(x, y+1)
			default:
				s := 1
				if (dx[i] < 0) != (dy[i] < 0) {
					s = -1
				}
				isMax = m > at(x-s, y-1) && m > at(x+s, y+1)
			}
			if !isMax {
				continue
			}

			if float64(m) > high {
				state[i] = strong
				stack = append(stack, i)
			} else {
				state[i] = weak
			}
		}
	}

	edges := len(stack)
	for len(stack) > 0 {
		i := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		cx, cy := i%w, i/w
		for ny := cy - 1; ny <= cy+1; ny++ {
			if ny < 0 || ny >= h {
				continue
			}
			for nx := cx - 1; nx <= cx+1; nx++ {
				if nx < 0 || nx >= w {
					continue
				}
				j := ny*w + nx
				if state[j] == weak {
					state[j] = strong
					edges++
					stack = append(stack, j)
				}
			}
		}
	}
	return edges
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
