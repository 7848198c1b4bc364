package object

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// A single encoder/decoder pair is safe for concurrent EncodeAll/DecodeAll.
var (
	zstdOnce    sync.Once
	zstdEncoder *zstd.Encoder
	zstdDecoder *zstd.Decoder
	zstdInitErr error
)

func zstdCodec() (*zstd.Encoder, *zstd.Decoder, error) {
	zstdOnce.Do(func() {
		zstdEncoder, zstdInitErr = zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if zstdInitErr != nil {
			return
		}
		zstdDecoder, zstdInitErr = zstd.NewReader(nil)
	})
	return zstdEncoder, zstdDecoder, zstdInitErr
}

// CompressZstd compresses data using zstd.
func CompressZstd(data []byte) ([]byte, error) {
	enc, _, err := zstdCodec()
	if err != nil {
		return nil, fmt.Errorf("zstd init: %w", err)
	}
	return enc.EncodeAll(data, nil), nil
}

// DecompressZstd decompresses zstd-compressed data.
func DecompressZstd(data []byte) ([]byte, error) {
	_, dec, err := zstdCodec()
	if err != nil {
		return nil, fmt.Errorf("zstd init: %w", err)
	}
	return dec.DecodeAll(data, nil)
}
