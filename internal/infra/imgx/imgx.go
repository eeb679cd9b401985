package imgx

import (
	"bytes"
	"errors"
	"fmt"
	"image"

	"github.com/disintegration/imaging"
	"github.com/gabriel-vasile/mimetype"
	_ "golang.org/x/image/webp" // 注册 WebP 解码器（站点预览图常见 webp）
)

const jpegQuality = 95

// ErrNotImage 表示字节内容不是可识别的图片（例如站点返回的 HTML 错误页）。
var ErrNotImage = errors.New("内容不是图片")

// NormalizeJPEG 保证输出为 JPEG 编码，便于以 *.jpg 文件名落盘。
//
// 规则：
// - 已是 JPEG：原样返回（不重新编码，避免画质损失）
// - PNG/GIF/WebP/BMP/TIFF：解码后重新编码为 JPEG
// - 其它内容：返回 ErrNotImage（调用方可决定是否原样写入）
func NormalizeJPEG(data []byte) ([]byte, error) {
	if len(data) == 0 {
		return nil, errors.New("图片为空")
	}
	mt := mimetype.Detect(data)
	switch {
	case mt.Is("image/jpeg"):
		return data, nil
	case mt.Is("image/png"), mt.Is("image/gif"), mt.Is("image/webp"), mt.Is("image/bmp"), mt.Is("image/tiff"):
	default:
		return nil, fmt.Errorf("%w：%s", ErrNotImage, mt.String())
	}

	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	return encodeJPEG(img)
}

// PosterFromCoverRightHalf 把横版封面裁切为右半边（常见影片封面的正面部分），输出 JPEG。
// 竖版图片（宽 <= 高）不裁切，仅转为 JPEG。
func PosterFromCoverRightHalf(cover []byte) ([]byte, error) {
	if len(cover) == 0 {
		return nil, errors.New("封面为空")
	}

	img, err := imaging.Decode(bytes.NewReader(cover))
	if err != nil {
		return nil, err
	}

	b := img.Bounds()
	if b.Dx() <= 0 || b.Dy() <= 0 {
		return nil, errors.New("图片尺寸无效")
	}
	if b.Dx() <= b.Dy() {
		return encodeJPEG(img)
	}

	// 右半边：x 从 w/2 到 w，y 全保留。
	x0 := b.Min.X + b.Dx()/2
	return encodeJPEG(imaging.Crop(img, image.Rect(x0, b.Min.Y, b.Max.X, b.Max.Y)))
}

func encodeJPEG(img image.Image) ([]byte, error) {
	var out bytes.Buffer
	if err := imaging.Encode(&out, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}
