package lag

import (
	"sync"
)

const (
	windowCap    = 5
	seedSample   = 50
	seedCount    = 3
	normalFloor  = 100
	panicFloor   = 200
	panicPadding = 30
)

// Estimator는 서버가 알려준 랙 표본으로 다음 전송에 신고할 랙(ms)을 계산한다.
// 표본 창은 최대 5개, 새 게임은 50ms 3개로 시드된다.
// 신고값은 실측 평균에 여유를 더하되 평균의 배수 상한으로 묶어서
// 과장 신고가 평균을 따라 폭주하지 않게 한다.
type Estimator struct {
	mu      sync.Mutex
	samples []int
	offset  int
}

func NewEstimator(offsetMs int) *Estimator {
	e := &Estimator{offset: offsetMs}
	e.seed()
	return e
}

func (e *Estimator) seed() {
	e.samples = e.samples[:0]
	for i := 0; i < seedCount; i++ {
		e.samples = append(e.samples, seedSample)
	}
}

// Record는 move 프레임의 랙 표본(ms)을 창에 넣는다. 0 이하는 버린다.
func (e *Estimator) Record(ms int) {
	if ms <= 0 {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.samples = append(e.samples, ms)
	if len(e.samples) > windowCap {
		e.samples = e.samples[len(e.samples)-windowCap:]
	}
}

// Reset은 새 게임 준비. 창을 시드값으로 되돌린다.
func (e *Estimator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.seed()
}

func (e *Estimator) Average() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.average()
}

func (e *Estimator) average() int {
	if len(e.samples) == 0 {
		return 0
	}
	sum := 0
	for _, s := range e.samples {
		sum += s
	}
	return sum / len(e.samples)
}

// NormalClaim은 평소 신고 랙: min(avg+offset, max(avg*2, 100)).
// 표본이 없으면 100.
func (e *Estimator) NormalClaim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.samples) == 0 {
		return normalFloor
	}
	avg := e.average()
	ceil := avg * 2
	if ceil < normalFloor {
		ceil = normalFloor
	}
	claim := avg + e.offset
	if claim > ceil {
		claim = ceil
	}
	return claim
}

// PanicClaim은 초읽기 신고 랙: min(avg+offset+30, max(avg*3, 200)).
// 표본이 없으면 200.
func (e *Estimator) PanicClaim() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.samples) == 0 {
		return panicFloor
	}
	avg := e.average()
	ceil := avg * 3
	if ceil < panicFloor {
		ceil = panicFloor
	}
	claim := avg + e.offset + panicPadding
	if claim > ceil {
		claim = ceil
	}
	return claim
}

// Samples는 현재 창 사본. 진단용.
func (e *Estimator) Samples() []int {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]int, len(e.samples))
	copy(out, e.samples)
	return out
}
