package transfer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestProgressSmallTotals(t *testing.T) {
	for total := uint64(1); total < 100; total++ {
		var reported uint64
		p := progress{logger: zap.NewNop(), total: total, fn: func(done, _ uint64) { reported = done }}
		for done := uint64(0); done <= total; done++ {
			assert.NotPanics(t, func() { p.update(done) }, "total=%d done=%d", total, done)
		}
		assert.Equal(t, total, reported)
		assert.Equal(t, uint64(100), p.lastPct, "total=%d", total)
	}
}

func TestProgressLargeTotalCapsAtHundred(t *testing.T) {
	p := progress{logger: zap.NewNop(), total: 250}
	p.update(125)
	assert.Equal(t, uint64(62), p.lastPct)
	p.update(250)
	assert.Equal(t, uint64(100), p.lastPct)

	p = progress{logger: zap.NewNop()}
	assert.NotPanics(t, func() { p.update(0) })
}
