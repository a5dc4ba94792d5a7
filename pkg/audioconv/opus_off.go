//go:build !opus

package audioconv

import "io"

func decodeOggOpus(io.ReadSeeker, Options) ([]float32, error) {
	return nil, ErrOpusDisabled
}
