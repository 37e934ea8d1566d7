package classifier

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/helpdesk-micro/tracker-service/internal/model"
)

// Fallback is the offline classifier used in development and whenever the
// external call is disabled, unconfigured or failing. It always succeeds.
type Fallback struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func NewFallback() *Fallback {
	return NewFallbackWithSource(rand.NewSource(time.Now().UnixNano()))
}

// NewFallbackWithSource allows tests to inject a seeded source.
func NewFallbackWithSource(src rand.Source) *Fallback {
	return &Fallback{rng: rand.New(src)}
}

func (f *Fallback) Classify(_ context.Context, subject, _ string) Result {
	f.mu.Lock()
	cats := model.Categories()
	cat := cats[f.rng.Intn(len(cats))]
	// Uniform in [0.50, 0.95].
	conf := 0.50 + f.rng.Float64()*0.45
	f.mu.Unlock()

	return sanitize(Result{
		Category:    cat,
		Explanation: fmt.Sprintf("Heuristic guess for '%s'", subject),
		Confidence:  conf,
	})
}
