package api

import (
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"gocv.io/x/gocv"
)

// Frame decoding errors. All of them map to 400 Bad Request except
// ErrFrameTooLarge, which maps to 413.
var (
	ErrFrameEmpty    = errors.New("frame data is empty")
	ErrFrameTooLarge = errors.New("frame too large")
	ErrFrameInvalid  = errors.New("invalid frame")
)

// MinFrameSide is the smallest accepted frame width and height.
const MinFrameSide = 100

// DecodeBase64Frame decodes raw base64 or a data URI
// ("data:image/jpeg;base64,...") into a BGR image. maxBytes caps the decoded
// size; zero disables the check. The caller must close the returned Mat.
func DecodeBase64Frame(s string, maxBytes int) (gocv.Mat, error) {
	if s == "" {
		return gocv.NewMat(), ErrFrameEmpty
	}
	if strings.HasPrefix(s, "data:") {
		header, payload, ok := strings.Cut(s, ",")
		if !ok || !strings.HasPrefix(header, "data:image/") || !strings.HasSuffix(header, ";base64") {
			return gocv.NewMat(), fmt.Errorf("%w: malformed data URI", ErrFrameInvalid)
		}
		s = payload
	}
	if maxBytes > 0 && base64.StdEncoding.DecodedLen(len(s)) > maxBytes {
		return gocv.NewMat(), fmt.Errorf("%w: about %d KB, max %d KB", ErrFrameTooLarge, base64.StdEncoding.DecodedLen(len(s))/1024, maxBytes/1024)
	}

	data, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("%w: base64: %v", ErrFrameInvalid, err)
	}
	return DecodeFrame(data, maxBytes)
}

// DecodeFrame decodes encoded image bytes (JPEG, PNG) into a BGR image and
// checks it is large enough to hold a signer. The caller must close the
// returned Mat.
func DecodeFrame(data []byte, maxBytes int) (gocv.Mat, error) {
	if len(data) == 0 {
		return gocv.NewMat(), ErrFrameEmpty
	}
	if maxBytes > 0 && len(data) > maxBytes {
		return gocv.NewMat(), fmt.Errorf("%w: %d KB, max %d KB", ErrFrameTooLarge, len(data)/1024, maxBytes/1024)
	}

	mat, err := gocv.IMDecode(data, gocv.IMReadColor)
	if err != nil {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: %v", ErrFrameInvalid, err)
	}
	if mat.Empty() {
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: not a decodable image", ErrFrameInvalid)
	}
	if mat.Cols() < MinFrameSide || mat.Rows() < MinFrameSide || mat.Channels() != 3 {
		size := fmt.Sprintf("%dx%d", mat.Cols(), mat.Rows())
		mat.Close()
		return gocv.NewMat(), fmt.Errorf("%w: too small (%s)", ErrFrameInvalid, size)
	}
	return mat, nil
}

// ResizeFrame shrinks frame in place to width, keeping the aspect ratio.
// Frames already narrow enough, and a non-positive width, are left alone.
func ResizeFrame(frame *gocv.Mat, width int) {
	if width <= 0 || frame.Cols() <= width {
		return
	}
	height := frame.Rows() * width / frame.Cols()
	resized := gocv.NewMat()
	gocv.Resize(*frame, &resized, image.Pt(width, height), 0, 0, gocv.InterpolationArea)
	frame.Close()
	*frame = resized
}
