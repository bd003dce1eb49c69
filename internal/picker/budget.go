package picker

import "sync"

// BlunderBudget은 게임당 의도적 실수 허용량. 새 게임에서 Reset.
type BlunderBudget struct {
	mu      sync.Mutex
	allowed int
	used    int
}

func NewBudget(allowed int) *BlunderBudget {
	if allowed < 0 {
		allowed = 0
	}
	return &BlunderBudget{allowed: allowed}
}

func (b *BlunderBudget) Allowed() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.allowed
}

func (b *BlunderBudget) Used() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used
}

func (b *BlunderBudget) Exhausted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.used >= b.allowed
}

func (b *BlunderBudget) Spend() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.used++
}

func (b *BlunderBudget) Reset(allowed int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if allowed >= 0 {
		b.allowed = allowed
	}
	b.used = 0
}
