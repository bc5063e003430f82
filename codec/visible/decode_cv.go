//go:build withcv

/*
NAME
  decode_cv.go

DESCRIPTION
  decode_cv.go decodes a finalized JPEG buffer to a BGR raster using gocv,
  exactly as gocv.Mat's native pixel order matches the BGR raster spec.md
  §3 requires. Mirrors filter/mog.go's withcv gating.

LICENSE
  See the LICENSE file distributed with this repository.
*/

package visible

import (
	"fmt"

	"gocv.io/x/gocv"
)

func decode(jpeg []byte) (Raster, error) {
	mat, err := gocv.IMDecode(jpeg, gocv.IMReadColor)
	if err != nil {
		return Raster{}, fmt.Errorf("gocv: decode failed: %w", err)
	}
	defer mat.Close()

	if mat.Empty() {
		return Raster{}, fmt.Errorf("gocv: decoded empty mat")
	}

	out := make([]byte, Height*Width*3)
	n, err := mat.DataPtrUint8()
	if err != nil {
		return Raster{}, fmt.Errorf("gocv: could not access mat data: %w", err)
	}
	copy(out, n)

	return Raster{Pixels: out}, nil
}
