package main

import (
	"fmt"
	"image"
	"math"

	"gocv.io/x/gocv"
)

const (
	// HEModeLuma equalizes only the Y channel of a YUV conversion.
	HEModeLuma = "luma"
	// HEModeChannels equalizes B, G and R independently.
	HEModeChannels = "channels"

	// WaterNetGamma is the gamma applied to the gamma-corrected WaterNet input.
	WaterNetGamma = 0.7
)

// MSRCRParams holds the Multi-Scale Retinex with Color Restoration settings.
type MSRCRParams struct {
	Scales       []int
	Alpha        float32
	Beta         float32
	ColorRestore float32
}

// EqualizeHistogram applies histogram equalization to an 8-bit image.
// Single channel images are equalized directly. Color images are equalized
// according to mode.
func EqualizeHistogram(img gocv.Mat, mode string) (gocv.Mat, error) {
	switch img.Channels() {
	case 1:
		out := gocv.NewMat()
		gocv.EqualizeHist(img, &out)
		return out, nil
	case 3:
	case 4:
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(img, &bgr, gocv.ColorBGRAToBGR)
		return EqualizeHistogram(bgr, mode)
	default:
		return gocv.NewMat(), fmt.Errorf("unsupported channel count %d", img.Channels())
	}

	switch mode {
	case HEModeLuma:
		yuv := gocv.NewMat()
		defer yuv.Close()
		gocv.CvtColor(img, &yuv, gocv.ColorBGRToYUV)

		ch := gocv.Split(yuv)
		defer closeAll(ch)
		gocv.EqualizeHist(ch[0], &ch[0])
		gocv.Merge(ch, &yuv)

		out := gocv.NewMat()
		gocv.CvtColor(yuv, &out, gocv.ColorYUVToBGR)
		return out, nil

	case HEModeChannels:
		ch := gocv.Split(img)
		defer closeAll(ch)
		for i := range ch {
			gocv.EqualizeHist(ch[i], &ch[i])
		}

		out := gocv.NewMat()
		gocv.Merge(ch, &out)
		return out, nil
	}

	return gocv.NewMat(), fmt.Errorf("unknown equalization mode %q", mode)
}

// MSRCR enhances a BGR image with multi-scale Retinex on the Lab lightness
// channel and scales the a/b chroma channels around neutral gray.
func MSRCR(img gocv.Mat, p MSRCRParams) (gocv.Mat, error) {
	if len(p.Scales) == 0 {
		return gocv.NewMat(), fmt.Errorf("no retinex scales")
	}

	bgr := toBGR(img)
	defer bgr.Close()

	lab := gocv.NewMat()
	defer lab.Close()
	gocv.CvtColor(bgr, &lab, gocv.ColorBGRToLab)

	ch := gocv.Split(lab)
	defer closeAll(ch)

	l := gocv.NewMat()
	defer l.Close()
	ch[0].ConvertTo(&l, gocv.MatTypeCV32F)

	logL := logPlusOne(l)
	defer logL.Close()

	retinex := gocv.NewMat()
	defer retinex.Close()

	for i, s := range p.Scales {
		k := oddKernel(s)

		blur := gocv.NewMat()
		gocv.GaussianBlur(l, &blur, image.Pt(k, k), 0, 0, gocv.BorderDefault)
		logBlur := logPlusOne(blur)
		blur.Close()

		diff := gocv.NewMat()
		gocv.Subtract(logL, logBlur, &diff)
		logBlur.Close()

		if i == 0 {
			diff.CopyTo(&retinex)
		} else {
			gocv.Add(retinex, diff, &retinex)
		}
		diff.Close()
	}

	// alpha * (retinex / n) + beta, saturated to 8 bits
	n := float32(len(p.Scales))
	lOut := gocv.NewMat()
	defer lOut.Close()
	retinex.ConvertToWithParams(&lOut, gocv.MatTypeCV8U, p.Alpha/n, p.Beta)

	c := p.ColorRestore
	aOut := gocv.NewMat()
	defer aOut.Close()
	ch[1].ConvertToWithParams(&aOut, gocv.MatTypeCV8U, c, 128*(1-c))

	bOut := gocv.NewMat()
	defer bOut.Close()
	ch[2].ConvertToWithParams(&bOut, gocv.MatTypeCV8U, c, 128*(1-c))

	merged := gocv.NewMat()
	defer merged.Close()
	gocv.Merge([]gocv.Mat{lOut, aOut, bOut}, &merged)

	out := gocv.NewMat()
	gocv.CvtColor(merged, &out, gocv.ColorLabToBGR)
	return out, nil
}

// WhiteBalance applies gray-world white balance: every channel is scaled so
// its mean matches the mean over all channels.
func WhiteBalance(img gocv.Mat) gocv.Mat {
	ch := gocv.Split(img)
	defer closeAll(ch)

	means := make([]float64, len(ch))
	var avg float64
	for i := range ch {
		means[i] = ch[i].Mean().Val1
		avg += means[i]
	}
	avg /= float64(len(ch))

	balanced := make([]gocv.Mat, len(ch))
	for i := range ch {
		scale := float32(1)
		if means[i] > 0 {
			scale = float32(avg / means[i])
		}
		balanced[i] = gocv.NewMat()
		ch[i].ConvertToWithParams(&balanced[i], gocv.MatTypeCV8U, scale, 0)
	}
	defer closeAll(balanced)

	out := gocv.NewMat()
	gocv.Merge(balanced, &out)
	return out
}

// GammaCorrect maps every 8-bit value v to 255 * (v/255)^gamma.
func GammaCorrect(img gocv.Mat, gamma float64) (gocv.Mat, error) {
	lut, err := gocv.NewMatFromBytes(1, 256, gocv.MatTypeCV8U, gammaTable(gamma))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("gamma lookup table: %w", err)
	}
	defer lut.Close()

	out := gocv.NewMat()
	gocv.LUT(img, lut, &out)
	return out, nil
}

func gammaTable(gamma float64) []byte {
	table := make([]byte, 256)
	for i := range table {
		v := math.Pow(float64(i)/255, gamma) * 255
		table[i] = uint8(math.Min(255, math.Round(v)))
	}
	return table
}

// ComputeImageChannelMetrics calculates key statistical measures across the color channels of an image. Where:
// b captures the overall average brightness of the image
// m represents the average of the channel-wise means, indicating the image's overall color balance
// s measures the average spread of pixel values across channels, reflecting the image's overall contrast or detail level
func ComputeImageChannelMetrics(img gocv.Mat) (float32, float32, float32) {
	mean := gocv.NewMat()
	defer mean.Close()
	stdDev := gocv.NewMat()
	defer stdDev.Close()

	gocv.MeanStdDev(img, &mean, &stdDev)

	gray := img
	if img.Channels() > 1 {
		bgr := toBGR(img)
		defer bgr.Close()
		gray = gocv.NewMat()
		defer gray.Close()
		gocv.CvtColor(bgr, &gray, gocv.ColorBGRToGray)
	}
	b := ComputeMatMean(gray)

	m := averageColumn(mean, img.Channels())
	s := averageColumn(stdDev, img.Channels())

	return b, m, s
}

// ComputeMatMean calculates the mean pixel value of a single channel image.
func ComputeMatMean(img gocv.Mat) float32 {
	return float32(img.Mean().Val1)
}

// averageColumn averages the first n values of a CV_64F column as produced by MeanStdDev.
func averageColumn(col gocv.Mat, n int) float32 {
	if n == 0 || col.Empty() {
		return 0
	}
	if n > col.Rows() {
		n = col.Rows()
	}
	var sum float64
	for i := 0; i < n; i++ {
		sum += col.GetDoubleAt(i, 0)
	}
	return float32(sum / float64(n))
}

// oddKernel returns the Gaussian kernel size for a retinex scale. OpenCV only
// accepts odd sizes, so even scales are rounded up.
func oddKernel(scale int) int {
	if scale < 1 {
		return 1
	}
	if scale%2 == 0 {
		return scale + 1
	}
	return scale
}

func logPlusOne(src gocv.Mat) gocv.Mat {
	dst := src.Clone()
	dst.AddFloat(1)
	gocv.Log(dst, &dst)
	return dst
}

// toBGR returns a 3-channel copy of img.
func toBGR(img gocv.Mat) gocv.Mat {
	out := gocv.NewMat()
	switch img.Channels() {
	case 1:
		gocv.CvtColor(img, &out, gocv.ColorGrayToBGR)
	case 4:
		gocv.CvtColor(img, &out, gocv.ColorBGRAToBGR)
	default:
		img.CopyTo(&out)
	}
	return out
}

// ResizeToMaxSide downscales img so that its longer side is at most maxSide.
// A non-positive maxSide or a smaller image returns a copy.
func ResizeToMaxSide(img gocv.Mat, maxSide int) gocv.Mat {
	w, h := img.Cols(), img.Rows()
	longest := max(w, h)
	if maxSide <= 0 || longest <= maxSide {
		return img.Clone()
	}

	scale := float64(maxSide) / float64(longest)
	size := image.Pt(max(1, int(float64(w)*scale)), max(1, int(float64(h)*scale)))

	out := gocv.NewMat()
	gocv.Resize(img, &out, size, 0, 0, gocv.InterpolationArea)
	return out
}

func closeAll(mats []gocv.Mat) {
	for i := range mats {
		mats[i].Close()
	}
}
