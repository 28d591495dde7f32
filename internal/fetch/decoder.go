package fetch

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	// 标准库解码器
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Image 是解码成功的图片。Data 保留原始字节，写缓存与对外输出都直接使用它。
type Image struct {
	URL     string
	Data    []byte
	Format  string
	Width   int
	Height  int
	Decoded image.Image
}

// ContentType 根据解码格式推导 MIME 类型。
func (i *Image) ContentType() string {
	if i == nil || i.Format == "" {
		return "application/octet-stream"
	}
	return "image/" + i.Format
}

// Decoder 将字节解码为已校验的图片，无法识别的格式必须返回错误。
type Decoder interface {
	Decode(data []byte) (*Image, error)
}

// DecoderFunc adapts a function to the Decoder interface.
type DecoderFunc func(data []byte) (*Image, error)

// Decode makes DecoderFunc satisfy Decoder.
func (f DecoderFunc) Decode(data []byte) (*Image, error) {
	return f(data)
}

// DefaultMaxPixels 是 ImageDecoder 未配置像素预算时使用的上限（约 50MP）。
const DefaultMaxPixels = 50_000_000

// ErrTooManyPixels 表示图片头部声明的像素数超出预算，正文不会被完整解码。
var ErrTooManyPixels = errors.New("image exceeds pixel budget")

// ImageDecoder 使用 image.Decode 完整解码，支持 jpeg/png/gif/webp/bmp/tiff。
// 解码前先用 image.DecodeConfig 读取头部尺寸，超过 MaxPixels 的图片直接拒绝，
// 避免几十字节的头部触发巨量内存分配。MaxPixels <= 0 时使用 DefaultMaxPixels。
type ImageDecoder struct {
	MaxPixels int64
}

func (d ImageDecoder) Decode(data []byte) (*Image, error) {
	if len(data) == 0 {
		return nil, errors.New("empty body")
	}
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	budget := d.MaxPixels
	if budget <= 0 {
		budget = DefaultMaxPixels
	}
	if cfg.Width < 0 || cfg.Height < 0 || int64(cfg.Width)*int64(cfg.Height) > budget {
		return nil, fmt.Errorf("%w: %dx%d > %d", ErrTooManyPixels, cfg.Width, cfg.Height, budget)
	}

	decoded, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := decoded.Bounds()
	return &Image{
		Data:    data,
		Format:  format,
		Width:   bounds.Dx(),
		Height:  bounds.Dy(),
		Decoded: decoded,
	}, nil
}
