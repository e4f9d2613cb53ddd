package keystrategy

import (
	"bytes"
	"fmt"
	"image"

	// 注册常见图像格式解码器
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/corona10/goimagehash"

	"github.com/framesense/framesense/vision"
)

// perceptualHash 计算图像的 64 位感知哈希，返回 16 位十六进制
// 解码失败或哈希失败时返回错误，由调用方降级为内容摘要
func perceptualHash(data []byte) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	return hashImage(img)
}

// croppedHash 对边界框裁剪后的子图计算感知哈希
func croppedHash(data []byte, box vision.BoundingBox) (string, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}

	rect := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height)
	rect = rect.Intersect(img.Bounds())
	if rect.Empty() {
		return "", fmt.Errorf("bounding box %v outside image bounds %v", box, img.Bounds())
	}

	type subImager interface {
		SubImage(r image.Rectangle) image.Image
	}
	if si, ok := img.(subImager); ok {
		return hashImage(si.SubImage(rect))
	}

	// 解码器不支持 SubImage 时手动复制像素
	cropped := image.NewRGBA(image.Rect(0, 0, rect.Dx(), rect.Dy()))
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		for x := rect.Min.X; x < rect.Max.X; x++ {
			cropped.Set(x-rect.Min.X, y-rect.Min.Y, img.At(x, y))
		}
	}
	return hashImage(cropped)
}

func hashImage(img image.Image) (string, error) {
	hash, err := goimagehash.PerceptionHash(img)
	if err != nil {
		return "", fmt.Errorf("perception hash: %w", err)
	}
	return fmt.Sprintf("%016x", hash.GetHash()), nil
}

// Similarity 比较两个等长十六进制哈希的汉明相似度，返回 0-100 的百分比
// 长度不等或含非法字符时返回 0
func Similarity(a, b string) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	totalBits := len(a) * 4
	distance := 0
	for i := 0; i < len(a); i++ {
		na, okA := hexNibble(a[i])
		nb, okB := hexNibble(b[i])
		if !okA || !okB {
			return 0
		}
		distance += popcount4(na ^ nb)
	}

	return float64(totalBits-distance) / float64(totalBits) * 100
}

func hexNibble(c byte) (byte, bool) {
	switch {
	case c >= '0' && c <= '9':
		return c - '0', true
	case c >= 'a' && c <= 'f':
		return c - 'a' + 10, true
	case c >= 'A' && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func popcount4(n byte) int {
	count := 0
	for n != 0 {
		count += int(n & 1)
		n >>= 1
	}
	return count
}
