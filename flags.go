package ubxsec

import (
	"fmt"
	"strconv"
	"strings"
)

// FloatArrayFlags is a repeatable float flag. The first Set replaces the
// default values; later ones append. A comma separated list is accepted
// too.
type FloatArrayFlags struct {
	Array   []float64
	beenSet bool
}

func (f *FloatArrayFlags) Set(valueStr string) error {
	if !f.beenSet {
		f.beenSet = true
		f.Array = nil
	}

	for _, s := range strings.Split(valueStr, ",") {
		value, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return err
		}
		f.Array = append(f.Array, value)
	}
	return nil
}

func (f *FloatArrayFlags) String() string {
	return fmt.Sprint(f.Array)
}

func (f *FloatArrayFlags) Type() string { return "floats" }
