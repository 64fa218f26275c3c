package jobs

import (
	"bytes"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/traditionalchinese"
	"golang.org/x/text/encoding/unicode"
)

var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// 可配置的后备编码
var fallbackEncodings = map[string]encoding.Encoding{
	"gbk":     simplifiedchinese.GBK,
	"gb18030": simplifiedchinese.GB18030,
	"big5":    traditionalchinese.Big5,
}

type namedEncoding struct {
	name string
	enc  encoding.Encoding
}

// Decoder 严格地把字节解码为文本，遇到非法序列时失败而不是静默替换
type Decoder struct {
	fallbacks []namedEncoding
}

// NewDecoder 创建解码器。names 是按顺序尝试的后备编码（gbk、gb18030、big5），
// 只有内容不是合法 UTF-8 时才会使用
func NewDecoder(names []string) (*Decoder, error) {
	d := &Decoder{}
	for _, name := range names {
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" {
			continue
		}
		enc, ok := fallbackEncodings[name]
		if !ok {
			return nil, fmt.Errorf("unsupported fallback encoding %q", name)
		}
		d.fallbacks = append(d.fallbacks, namedEncoding{name: name, enc: enc})
	}
	return d, nil
}

// Decode 按 UTF-8（可带 BOM）、带 BOM 的 UTF-16、后备编码的顺序解码
func (d *Decoder) Decode(data []byte) (string, error) {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		data = data[len(bomUTF8):]
	case bytes.HasPrefix(data, bomUTF16LE):
		return decodeStrict(unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM), data)
	case bytes.HasPrefix(data, bomUTF16BE):
		return decodeStrict(unicode.UTF16(unicode.BigEndian, unicode.ExpectBOM), data)
	}
	if utf8.Valid(data) {
		return string(data), nil
	}
	for _, fb := range d.fallbacks {
		if s, err := decodeStrict(fb.enc, data); err == nil {
			return s, nil
		}
	}
	return "", ErrInvalidEncoding
}

// decodeStrict 解码后若出现替换字符则视为非法输入
func decodeStrict(enc encoding.Encoding, data []byte) (string, error) {
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil || bytes.ContainsRune(out, utf8.RuneError) {
		return "", ErrInvalidEncoding
	}
	return string(out), nil
}
