package keystrategy

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"unicode"
)

// normalizeQuestion 规范化问题文本：大小写折叠、去标点、空白归一
// 保证两个文本等价的问题落在同一缓存键上
func normalizeQuestion(question string) string {
	var b strings.Builder
	b.Grow(len(question))

	lastSpace := false
	for _, r := range strings.ToLower(question) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case unicode.IsSpace(r):
			if !lastSpace && b.Len() > 0 {
				b.WriteRune(' ')
				lastSpace = true
			}
		default:
			// 标点直接丢弃
		}
	}

	return strings.TrimSpace(b.String())
}

// questionDigest 规范化后取 SHA-256 前 12 位十六进制
func questionDigest(question string) string {
	sum := sha256.Sum256([]byte(normalizeQuestion(question)))
	return hex.EncodeToString(sum[:])[:questionHashLen]
}

// contentDigest 原始字节 SHA-256 前 16 位十六进制
// 既是感知哈希记忆化的键，也是感知哈希失败时的降级值
func contentDigest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])[:imageHashLen]
}

const (
	imageHashLen    = 16
	questionHashLen = 12
)
