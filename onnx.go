package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"
)

const (
	KindUWCNN    = "uwcnn"
	KindWaterNet = "waternet"
)

// InitRuntime loads the onnxruntime shared library and initializes its
// environment. If sharedLibrary is empty, ONNXRUNTIME_SHARED_LIBRARY_PATH is
// respected. The returned func destroys the environment.
func InitRuntime(sharedLibrary string) (func(), error) {
	if sharedLibrary != "" {
		ort.SetSharedLibraryPath(sharedLibrary)
	} else if p := os.Getenv("ONNXRUNTIME_SHARED_LIBRARY_PATH"); p != "" {
		ort.SetSharedLibraryPath(p)
	}

	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("initialize onnxruntime: %w", err)
	}

	return func() {
		if err := ort.DestroyEnvironment(); err != nil {
			log.Warn().Err(err).Msg("destroy onnxruntime environment")
		}
	}, nil
}

// onnxModel runs an ONNX export of an underwater enhancement network.
//
// Assumptions:
//   - every input and the output are float32 tensors shaped [1, 3, H, W]
//   - channels are RGB with values in [0, 1]
//   - the network is fully convolutional, so H and W follow the image
type onnxModel struct {
	cfg     ModelConfig
	session *ort.DynamicAdvancedSession
}

// OpenModel creates an inference session for cfg. InitRuntime must have been called.
func OpenModel(cfg ModelConfig) (Enhancer, error) {
	want, err := inputCount(cfg.Kind)
	if err != nil {
		return nil, err
	}
	if len(cfg.Inputs) != want {
		return nil, fmt.Errorf("%w: model %s: %s expects %d inputs, got %d", ErrConfig, cfg.Name, cfg.Kind, want, len(cfg.Inputs))
	}
	if _, err := os.Stat(cfg.Path); err != nil {
		return nil, fmt.Errorf("model %s: %w", cfg.Name, err)
	}

	session, err := ort.NewDynamicAdvancedSession(cfg.Path, cfg.Inputs, []string{cfg.Output}, nil)
	if err != nil {
		return nil, fmt.Errorf("model %s: create session: %w", cfg.Name, err)
	}

	log.Debug().Str("model", cfg.Name).Str("path", cfg.Path).Strs("inputs", cfg.Inputs).Msg("session ready")
	return &onnxModel{cfg: cfg, session: session}, nil
}

func (m *onnxModel) Name() string {
	return m.cfg.Name
}

func (m *onnxModel) Enhance(img gocv.Mat) (gocv.Mat, error) {
	bgr := toBGR(img)
	defer bgr.Close()

	scaled := ResizeToMaxSide(bgr, m.cfg.MaxSide)
	defer scaled.Close()

	frames, err := modelInputs(m.cfg.Kind, scaled)
	if err != nil {
		return gocv.NewMat(), err
	}
	defer closeAll(frames)

	h, w := scaled.Rows(), scaled.Cols()
	shape := ort.NewShape(1, 3, int64(h), int64(w))

	inputs := make([]ort.Value, len(frames))
	for i := range frames {
		data, err := frames[i].DataPtrUint8()
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("read %s pixels: %w", m.cfg.Inputs[i], err)
		}
		t, err := ort.NewTensor(shape, bgrToCHW(data, h, w))
		if err != nil {
			return gocv.NewMat(), fmt.Errorf("input tensor %s: %w", m.cfg.Inputs[i], err)
		}
		defer t.Destroy()
		inputs[i] = t
	}

	out, err := ort.NewEmptyTensor[float32](shape)
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("output tensor: %w", err)
	}
	defer out.Destroy()

	if err := m.session.Run(inputs, []ort.Value{out}); err != nil {
		return gocv.NewMat(), fmt.Errorf("run %s: %w", m.cfg.Name, err)
	}

	result, err := gocv.NewMatFromBytes(h, w, gocv.MatTypeCV8UC3, chwToBGR(out.GetData(), h, w))
	if err != nil {
		return gocv.NewMat(), fmt.Errorf("output image: %w", err)
	}
	defer result.Close()

	return result.Clone(), nil
}

func (m *onnxModel) Close() error {
	return m.session.Destroy()
}

func inputCount(kind string) (int, error) {
	switch kind {
	case KindUWCNN:
		return 1, nil
	case KindWaterNet:
		return 4, nil
	}
	return 0, fmt.Errorf("%w: unsupported model kind %q", ErrConfig, kind)
}

// modelInputs prepares the images fed to a network of the given kind.
// WaterNet takes the raw image plus white balanced, histogram equalized and
// gamma corrected versions of it.
func modelInputs(kind string, img gocv.Mat) ([]gocv.Mat, error) {
	switch kind {
	case KindUWCNN:
		return []gocv.Mat{img.Clone()}, nil

	case KindWaterNet:
		wb := WhiteBalance(img)

		he, err := EqualizeHistogram(img, HEModeLuma)
		if err != nil {
			wb.Close()
			return nil, err
		}

		gc, err := GammaCorrect(img, WaterNetGamma)
		if err != nil {
			wb.Close()
			he.Close()
			return nil, err
		}

		return []gocv.Mat{img.Clone(), wb, he, gc}, nil
	}

	return nil, fmt.Errorf("%w: unsupported model kind %q", ErrConfig, kind)
}

// bgrToCHW converts interleaved 8-bit BGR pixels to planar RGB float32 in [0, 1].
func bgrToCHW(data []uint8, h, w int) []float32 {
	plane := h * w
	out := make([]float32, 3*plane)
	for i := 0; i < plane; i++ {
		out[i] = float32(data[i*3+2]) / 255
		out[plane+i] = float32(data[i*3+1]) / 255
		out[2*plane+i] = float32(data[i*3]) / 255
	}
	return out
}

// chwToBGR converts planar RGB float32 to interleaved 8-bit BGR, clipping to [0, 1].
func chwToBGR(data []float32, h, w int) []uint8 {
	plane := h * w
	out := make([]uint8, 3*plane)
	for i := 0; i < plane; i++ {
		out[i*3+2] = toByte(data[i])
		out[i*3+1] = toByte(data[plane+i])
		out[i*3] = toByte(data[2*plane+i])
	}
	return out
}

func toByte(v float32) uint8 {
	switch {
	case v <= 0 || v != v:
		return 0
	case v >= 1:
		return 255
	}
	return uint8(v*255 + 0.5)
}
