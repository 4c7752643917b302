package ubxsec

import (
	"math"
	"strconv"

	"gonum.org/v1/plot"
)

// PreciseTicks labels major ticks with just enough digits to tell them
// apart, and fills in unlabelled minor ticks between them.
type PreciseTicks struct {
	NSuggestedTicks int
}

func (t PreciseTicks) Ticks(min, max float64) []plot.Tick {
	n := t.NSuggestedTicks
	if n < 2 {
		n = 4
	}
	if max <= min {
		panic("ubxsec: illegal tick range")
	}

	mult, major := majorStep(max-min, n)
	val := math.Floor(min/major) * major
	var ticks []plot.Tick
	for ; val <= max; val += major {
		if val >= min {
			ticks = append(ticks, plot.Tick{Value: val})
		}
	}
	top := math.Max(math.Abs(val), major)
	prec := int(math.Ceil(math.Log10(top)) - math.Floor(math.Log10(major)))
	for i := range ticks {
		v := round(ticks[i].Value, prec)
		ticks[i] = plot.Tick{Value: v, Label: strconv.FormatFloat(v, 'g', -1, 64)}
	}

	minor := major / 2
	switch mult {
	case 3, 6:
		minor = major / 3
	case 5:
		minor = major / 5
	}
	labelled := make(map[float64]bool, len(ticks))
	for _, tk := range ticks {
		labelled[tk.Value] = true
	}
	for val = math.Floor(min/minor) * minor; val <= max; val += minor {
		if val >= min && !labelled[val] {
			ticks = append(ticks, plot.Tick{Value: val})
		}
	}
	return ticks
}

// majorStep picks the spacing of n major ticks over width as a multiple of
// a power of ten. Multiples of 7 and 9 are avoided.
func majorStep(width float64, n int) (int, float64) {
	tens := math.Pow10(int(math.Floor(math.Log10(width))))
	for width/tens < float64(n-1) {
		tens /= 10
	}
	mult := int(width / tens / float64(n-1))
	switch mult {
	case 7:
		mult = 6
	case 9:
		mult = 8
	}
	return mult, float64(mult) * tens
}

func round(x float64, prec int) float64 {
	if x == 0 {
		return 0
	}
	if prec >= 0 && x == math.Trunc(x) {
		return x
	}
	pow := math.Pow10(prec)
	intermed := x * pow
	if math.IsInf(intermed, 0) {
		return x
	}
	if x < 0 {
		x = math.Ceil(intermed - 0.5)
	} else {
		x = math.Floor(intermed + 0.5)
	}
	if x == 0 {
		return 0
	}
	return x / pow
}
