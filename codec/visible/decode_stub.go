//go:build !withcv

/*
NAME
  decode_stub.go

DESCRIPTION
  decode_stub.go replaces the gocv-backed decoder when the binary isn't
  built with the withcv tag, mirroring filter/filters_circleci.go's stand-in
  for gocv-dependent filters on CI, which has no OpenCV installed.

LICENSE
  See the LICENSE file distributed with this repository.
*/

package visible

func decode([]byte) (Raster, error) {
	return Raster{}, ErrNotDecoded
}
