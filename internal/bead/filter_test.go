package bead

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mill-presenter/internal/config"
	"mill-presenter/internal/drum"

	"gocv.io/x/gocv"
)

// A 4 px/mm drum centred at (200, 200): radius bounds are [4, 36].
func filterGeometry(t *testing.T) drum.Geometry {
	t.Helper()
	g, err := drum.New(200, 200, 180, 90)
	require.NoError(t, err)
	return g
}

func TestNonMaxSuppressOverlap(t *testing.T) {
	kept := NonMaxSuppress([]ScoredDetection{
		det(103, 100, 10, 0.8),
		det(100, 100, 10, 0.9),
	}, 0.5)

	require.Len(t, kept, 1)
	assert.Equal(t, 100, kept[0].X)
	assert.Equal(t, 0.9, kept[0].Conf)
}

func TestNonMaxSuppressKeepsSeparated(t *testing.T) {
	kept := NonMaxSuppress([]ScoredDetection{
		det(100, 100, 10, 0.6),
		det(111, 100, 10, 0.9), // distance 11 ≥ (10+10)·0.5
	}, 0.5)

	require.Len(t, kept, 2)
	assert.Equal(t, 111, kept[0].X)
	assert.Equal(t, 100, kept[1].X)
}

func TestNonMaxSuppressTieBreak(t *testing.T) {
	in := []ScoredDetection{
		det(50, 20, 5, 0.7),
		det(10, 20, 5, 0.7),
		det(30, 10, 5, 0.7),
		det(70, 40, 8, 0.7),
	}
	kept := NonMaxSuppress(in, 0.5)
	require.Len(t, kept, 4)

	// radius desc, then y asc, then x asc
	got := make([][2]int, len(kept))
	for i, d := range kept {
		got[i] = [2]int{d.X, d.Y}
	}
	assert.Equal(t, [][2]int{{70, 40}, {30, 10}, {10, 20}, {50, 20}}, got)

	// Input order does not matter.
	reversed := []ScoredDetection{in[3], in[2], in[1], in[0]}
	assert.Equal(t, kept, NonMaxSuppress(reversed, 0.5))
}

func TestNonMaxSuppressNoSurvivorsOverlap(t *testing.T) {
	var in []ScoredDetection
	for i := 0; i < 20; i++ {
		in = append(in, det(100+i*3, 100+(i%4)*2, float64(6+i%3), 0.5+float64(i%5)/10))
	}
	kept := NonMaxSuppress(in, 0.5)
	for i := range kept {
		for j := i + 1; j < len(kept); j++ {
			assert.False(t, kept[i].Circle().Overlaps(kept[j].Circle(), 0.5),
				"%v overlaps %v", kept[i].Candidate, kept[j].Candidate)
		}
	}
}

func TestFilterStages(t *testing.T) {
	geom := filterGeometry(t)
	f := NewFilter(config.Default())
	gray := gocv.NewMat()
	defer gray.Close()

	in := []ScoredDetection{
		det(200, 200, 10, 0.9), // kept
		det(250, 200, 10, 0.4), // below min_conf
		det(378, 200, 10, 0.9), // inside the drum but within the rim margin
		det(150, 150, 2, 0.9),  // radius below bounds
		det(150, 250, 40, 0.9), // radius above bounds
		det(260, 260, 12, 0.8), // kept
	}

	out := f.Filter(in, geom, gray)
	require.Len(t, out, 2)
	assert.Equal(t, 200, out[0].X)
	assert.Equal(t, 260, out[1].X)
	for _, d := range out {
		assert.GreaterOrEqual(t, d.Conf, 0.5)
		assert.True(t, geom.IsInside(d.X, d.Y, 0.02))
	}
}

func TestFilterEmpty(t *testing.T) {
	gray := gocv.NewMat()
	defer gray.Close()

	out := NewFilter(config.Default()).Filter(nil, filterGeometry(t), gray)
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestFilterBrightnessGate(t *testing.T) {
	geom := filterGeometry(t)
	gray := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(30, 0, 0, 0), 400, 400, gocv.MatTypeCV8UC1)
	defer gray.Close()
	for y := 95; y <= 105; y++ {
		for x := 95; x <= 105; x++ {
			gray.SetUCharAt(y, x, 200)
		}
	}

	in := []ScoredDetection{det(100, 100, 10, 0.9), det(200, 200, 10, 0.9)}

	cfg := config.Default()
	assert.Len(t, NewFilter(cfg).Filter(in, geom, gray), 2, "gate off by default")

	cfg.BrightnessThreshold = 50
	out := NewFilter(cfg).Filter(in, geom, gray)
	require.Len(t, out, 1)
	assert.Equal(t, 100, out[0].X)
}

func TestFilterAnnulus(t *testing.T) {
	geom := filterGeometry(t)
	gray := gocv.NewMat()
	defer gray.Close()

	// The inner hole has the higher confidence, so NMS alone keeps it.
	in := []ScoredDetection{det(200, 200, 20, 0.6), det(202, 201, 8, 0.9)}

	cfg := config.Default()
	out := NewFilter(cfg).Filter(in, geom, gray)
	require.Len(t, out, 1)
	assert.Equal(t, 8.0, out[0].RPx)

	cfg.AnnulusEnabled = true
	out = NewFilter(cfg).Filter(in, geom, gray)
	require.Len(t, out, 1)
	assert.Equal(t, 20.0, out[0].RPx)
}
