package cachestore

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

const (
	// compressThreshold 小于该字节数的负载不值得压缩
	compressThreshold = 1024

	algorithmGzip = "gzip"
)

// compressPayload 压缩负载，返回压缩结果与节省的字节数
func compressPayload(data []byte) ([]byte, int64, error) {
	var buf bytes.Buffer

	w := gzip.NewWriter(&buf)
	if _, err := w.Write(data); err != nil {
		return nil, 0, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, 0, fmt.Errorf("gzip close: %w", err)
	}

	compressed := buf.Bytes()
	saved := int64(len(data) - len(compressed))
	if saved < 0 {
		// 压缩反而变大：按失败处理，存原文
		return nil, 0, fmt.Errorf("gzip inflated payload by %d bytes", -saved)
	}

	return compressed, saved, nil
}

// decompressPayload 按算法标记解压
func decompressPayload(data []byte, algorithm string) ([]byte, error) {
	if algorithm != "" && algorithm != algorithmGzip {
		return nil, fmt.Errorf("unsupported compression algorithm: %s", algorithm)
	}

	r, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gzip reader: %w", err)
	}
	defer r.Close()

	out, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("gzip read: %w", err)
	}
	return out, nil
}
