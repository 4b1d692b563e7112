package experiment

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParams_KeyIsOrderIndependent(t *testing.T) {
	a := Params{"rsi_period": 14, "oversold": 30}
	b := Params{"oversold": 30, "rsi_period": 14}
	assert.Equal(t, a.Key(), b.Key())
}

func TestParams_KeyCollapsesIntegralFloats(t *testing.T) {
	// A value decoded as 10 by YAML and as 10.0 by JSON must key the same.
	a := Params{"period": 10}
	b := Params{"period": 10.0}
	assert.Equal(t, a.Key(), b.Key())
}

func TestParams_CloneIsIndependent(t *testing.T) {
	orig := Params{"a": 1}
	clone := orig.Clone()
	clone["a"] = 2
	assert.Equal(t, 1, orig["a"])
}

func TestParams_Float(t *testing.T) {
	p := Params{"i": 3, "f": 2.5, "s": "ema"}

	v, ok := p.Float("i")
	assert.True(t, ok)
	assert.Equal(t, 3.0, v)

	v, ok = p.Float("f")
	assert.True(t, ok)
	assert.Equal(t, 2.5, v)

	_, ok = p.Float("s")
	assert.False(t, ok)

	_, ok = p.Float("missing")
	assert.False(t, ok)
}

func TestTask_WithInterval(t *testing.T) {
	start := time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2023, 7, 1, 0, 0, 0, 0, time.UTC)

	task := Task{Symbol: "BTCUSDT", Params: Params{"a": 1}}
	scoped := task.WithInterval(start, end)

	assert.Equal(t, start, scoped.Start)
	assert.Equal(t, end, scoped.End)
	assert.True(t, task.Start.IsZero(), "original task must stay unscoped")
}
