package preprocess

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mill-presenter/internal/config"
	"mill-presenter/internal/drum"
	"mill-presenter/internal/testutil"

	"gocv.io/x/gocv"
)

func TestProcessShape(t *testing.T) {
	frame := testutil.BeadScene().Render()
	defer frame.Close()

	p := New(config.Default())
	defer p.Close()

	out := p.Process(frame, nil)
	defer out.Close()

	assert.Equal(t, frame.Rows(), out.Rows())
	assert.Equal(t, frame.Cols(), out.Cols())
	assert.Equal(t, 1, out.Channels())
	assert.Equal(t, gocv.MatTypeCV8UC1, out.Type())
}

func TestProcessIsDeterministic(t *testing.T) {
	scene := testutil.BeadScene()
	frame := scene.Render()
	defer frame.Close()

	g, err := drum.New(scene.Drum.Center.X, scene.Drum.Center.Y, int(scene.Drum.Radius), 200)
	require.NoError(t, err)
	roi := g.ROIMask(frame.Rows(), frame.Cols(), 0)
	defer roi.Close()

	p := New(config.Default())
	defer p.Close()

	a := p.Process(frame, &roi)
	defer a.Close()
	b := p.Process(frame, &roi)
	defer b.Close()

	assert.Equal(t, a.ToBytes(), b.ToBytes())
}

func TestProcessAcceptsGray(t *testing.T) {
	frame := testutil.BeadScene().Render()
	defer frame.Close()

	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(frame, &gray, gocv.ColorBGRToGray)

	p := New(config.Default())
	defer p.Close()

	fromColor := p.Process(frame, nil)
	defer fromColor.Close()
	fromGray := p.Process(gray, nil)
	defer fromGray.Close()

	assert.Equal(t, fromColor.ToBytes(), fromGray.ToBytes())
}

func TestROIMaskChangesOutput(t *testing.T) {
	scene := testutil.BeadScene()
	// A bright bead outside the drum that the mask must remove.
	scene.Beads = append(scene.Beads, testutil.Circle(20, 20, 10))
	frame := scene.Render()
	defer frame.Close()

	g, err := drum.New(160, 120, 110, 200)
	require.NoError(t, err)
	roi := g.ROIMask(frame.Rows(), frame.Cols(), 0)
	defer roi.Close()

	p := New(config.Default())
	defer p.Close()

	masked := p.Process(frame, &roi)
	defer masked.Close()
	unmasked := p.Process(frame, nil)
	defer unmasked.Close()

	assert.Less(t, masked.GetUCharAt(20, 20), unmasked.GetUCharAt(20, 20))
}

func TestGlareSuppression(t *testing.T) {
	frame := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(255, 255, 255, 0), 64, 64, gocv.MatTypeCV8UC3)
	defer frame.Close()

	cfg := config.Default()
	cfg.GlareEnabled = true
	p := New(cfg)
	defer p.Close()

	out := p.Process(frame, nil)
	defer out.Close()

	_, maxVal, _, _ := gocv.MinMaxLoc(out)
	assert.LessOrEqual(t, maxVal, float32(cfg.GlareThreshold))
}

func TestTopHatStage(t *testing.T) {
	frame := testutil.BeadScene().Render()
	defer frame.Close()

	plain := New(config.Default())
	defer plain.Close()

	cfg := config.Default()
	cfg.TopHatEnabled = true
	withTopHat := New(cfg)
	defer withTopHat.Close()

	a := plain.Process(frame, nil)
	defer a.Close()
	b := withTopHat.Process(frame, nil)
	defer b.Close()

	assert.Equal(t, a.Rows(), b.Rows())
	assert.NotEqual(t, a.ToBytes(), b.ToBytes())
}
