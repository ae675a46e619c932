package classifier

import (
	"fmt"
	"image"

	"gocv.io/x/gocv"

	"github.com/ayusman/signvista/internal/model"
)

// Skin colour bounds.
var (
	hsvLower   = gocv.NewScalar(0, 40, 0, 0)
	hsvUpper   = gocv.NewScalar(25, 255, 255, 0)
	ycrcbLower = gocv.NewScalar(0, 138, 67, 0)
	ycrcbUpper = gocv.NewScalar(255, 173, 133, 0)
)

// morphIterations is the number of erode and dilate rounds applied to the
// skin mask.
const morphIterations = 3

// SegmentSkin keeps the skin coloured pixels of a BGR image and blacks out
// the rest. The caller must close the returned Mat.
//
// A pixel counts as skin when it falls in either the HSV or the YCrCb range;
// the combined mask is opened with a small kernel to drop speckles.
func SegmentSkin(src gocv.Mat) gocv.Mat {
	hsv := gocv.NewMat()
	defer hsv.Close()
	gocv.CvtColor(src, &hsv, gocv.ColorBGRToHSV)

	hsvMask := gocv.NewMat()
	defer hsvMask.Close()
	gocv.InRangeWithScalar(hsv, hsvLower, hsvUpper, &hsvMask)

	ycrcb := gocv.NewMat()
	defer ycrcb.Close()
	gocv.CvtColor(src, &ycrcb, gocv.ColorBGRToYCrCb)

	ycrcbMask := gocv.NewMat()
	defer ycrcbMask.Close()
	gocv.InRangeWithScalar(ycrcb, ycrcbLower, ycrcbUpper, &ycrcbMask)

	mask := gocv.NewMat()
	defer mask.Close()
	gocv.BitwiseOr(hsvMask, ycrcbMask, &mask)

	kernel := gocv.GetStructuringElement(gocv.MorphEllipse, image.Pt(3, 3))
	defer kernel.Close()

	tmp := gocv.NewMat()
	defer tmp.Close()
	for i := 0; i < morphIterations; i++ {
		gocv.Erode(mask, &tmp, kernel)
		tmp.CopyTo(&mask)
	}
	for i := 0; i < morphIterations; i++ {
		gocv.Dilate(mask, &tmp, kernel)
		tmp.CopyTo(&mask)
	}

	out := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(0, 0, 0, 0), src.Rows(), src.Cols(), src.Type())
	src.CopyToWithMask(&out, mask)
	return out
}

// ImageTensor resizes a BGR image to size x size, converts it to RGB scaled
// to [0, 1] and returns it as a (1, size, size, 3) tensor.
func ImageTensor(src gocv.Mat, size int) (model.Tensor, error) {
	if src.Empty() {
		return model.Tensor{}, fmt.Errorf("empty image")
	}
	if src.Channels() != 3 {
		return model.Tensor{}, fmt.Errorf("expected 3 channels, got %d", src.Channels())
	}

	resized := gocv.NewMat()
	defer resized.Close()
	gocv.Resize(src, &resized, image.Pt(size, size), 0, 0, gocv.InterpolationArea)

	rgb := gocv.NewMat()
	defer rgb.Close()
	gocv.CvtColor(resized, &rgb, gocv.ColorBGRToRGB)

	scaled := gocv.NewMat()
	defer scaled.Close()
	rgb.ConvertToWithParams(&scaled, gocv.MatTypeCV32FC3, 1.0/255.0, 0)

	data, err := scaled.DataPtrFloat32()
	if err != nil {
		return model.Tensor{}, fmt.Errorf("read pixels: %w", err)
	}
	return model.NewTensor([]int{1, size, size, 3}, append([]float32(nil), data...))
}
