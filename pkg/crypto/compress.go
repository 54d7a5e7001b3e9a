package crypto

import (
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/nexusdb/guardian/pkg/types"
)

// Compress streams r through the named codec into w. CompressionNone is a
// byte-identity pass.
func Compress(algo types.CompressionAlgo, w io.Writer, r io.Reader) error {
	switch algo {
	case types.CompressionNone, "":
		_, err := io.Copy(w, r)
		return err
	case types.CompressionGzip:
		gw, err := gzip.NewWriterLevel(w, 6)
		if err != nil {
			return fmt.Errorf("gzip writer: %w", err)
		}
		if _, err := io.Copy(gw, r); err != nil {
			gw.Close()
			return fmt.Errorf("gzip compress: %w", err)
		}
		return gw.Close()
	case types.CompressionLZ4:
		lw := lz4.NewWriter(w)
		if _, err := io.Copy(lw, r); err != nil {
			lw.Close()
			return fmt.Errorf("lz4 compress: %w", err)
		}
		return lw.Close()
	case types.CompressionZstd:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return fmt.Errorf("zstd writer: %w", err)
		}
		if _, err := io.Copy(zw, r); err != nil {
			zw.Close()
			return fmt.Errorf("zstd compress: %w", err)
		}
		return zw.Close()
	default:
		return fmt.Errorf("unknown compression algorithm %q", algo)
	}
}

// Decompress is the inverse of Compress.
func Decompress(algo types.CompressionAlgo, w io.Writer, r io.Reader) error {
	switch algo {
	case types.CompressionNone, "":
		_, err := io.Copy(w, r)
		return err
	case types.CompressionGzip:
		gr, err := gzip.NewReader(r)
		if err != nil {
			return fmt.Errorf("gzip reader: %w", err)
		}
		defer gr.Close()
		_, err = io.Copy(w, gr)
		return err
	case types.CompressionLZ4:
		lr := lz4.NewReader(r)
		_, err := io.Copy(w, lr)
		return err
	case types.CompressionZstd:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return fmt.Errorf("zstd reader: %w", err)
		}
		defer zr.Close()
		_, err = io.Copy(w, zr)
		return err
	default:
		return fmt.Errorf("unknown compression algorithm %q", algo)
	}
}
