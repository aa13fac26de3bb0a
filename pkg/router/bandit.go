package router

import (
	"math"
	"math/rand"
	"sort"
)

// armState is the per-arm learning state, shared by all bandit kinds. For the
// scalar bandits only Count and B[0] (reward sum) are populated; LinUCB uses
// the full diagonal design matrix.
type armState struct {
	ID    string    `json:"id"`
	ADiag []float64 `json:"A_diag"`
	B     []float64 `json:"b"`
	Count int64     `json:"count"`
}

// bandit is one learning policy instance, scoped to a task domain.
type bandit interface {
	// Select picks one arm ID from candidates. Candidates are pre-sorted by
	// the caller's tie-break order, so equal scores resolve deterministically.
	Select(candidates []string, features []float64) string

	// Update records an observed reward for an arm.
	Update(armID string, reward float64, features []float64)

	// state exports the per-arm learning state for snapshots.
	state() []armState

	// load restores previously exported state.
	load(states []armState)
}

// epsilonGreedy explores uniformly with probability epsilon and otherwise
// exploits the best empirical mean.
type epsilonGreedy struct {
	epsilon float64
	rng     *rand.Rand
	arms    map[string]*armState
}

func newEpsilonGreedy(epsilon float64, rng *rand.Rand) *epsilonGreedy {
	return &epsilonGreedy{epsilon: epsilon, rng: rng, arms: make(map[string]*armState)}
}

func (e *epsilonGreedy) arm(id string) *armState {
	a, ok := e.arms[id]
	if !ok {
		a = &armState{ID: id, B: make([]float64, 1)}
		e.arms[id] = a
	}
	return a
}

func (e *epsilonGreedy) Select(candidates []string, _ []float64) string {
	if e.rng.Float64() < e.epsilon {
		return candidates[e.rng.Intn(len(candidates))]
	}
	best, bestMean := candidates[0], math.Inf(-1)
	for _, id := range candidates {
		a := e.arm(id)
		if a.Count == 0 {
			// Unplayed arms are tried before exploiting.
			return id
		}
		if mean := a.B[0] / float64(a.Count); mean > bestMean {
			best, bestMean = id, mean
		}
	}
	return best
}

func (e *epsilonGreedy) Update(armID string, reward float64, _ []float64) {
	a := e.arm(armID)
	a.Count++
	a.B[0] += reward
}

func (e *epsilonGreedy) state() []armState { return exportArms(e.arms) }
func (e *epsilonGreedy) load(states []armState) {
	for _, s := range states {
		s := s
		if len(s.B) == 0 {
			s.B = make([]float64, 1)
		}
		e.arms[s.ID] = &s
	}
}

// ucb1 scores each arm by mean reward plus a confidence bonus shrinking with
// play count. Deterministic given identical state.
type ucb1 struct {
	confidence float64
	arms       map[string]*armState
	total      int64
}

func newUCB1(confidence float64) *ucb1 {
	if confidence <= 0 {
		confidence = 2
	}
	return &ucb1{confidence: confidence, arms: make(map[string]*armState)}
}

func (u *ucb1) arm(id string) *armState {
	a, ok := u.arms[id]
	if !ok {
		a = &armState{ID: id, B: make([]float64, 1)}
		u.arms[id] = a
	}
	return a
}

func (u *ucb1) Select(candidates []string, _ []float64) string {
	best, bestScore := candidates[0], math.Inf(-1)
	for _, id := range candidates {
		a := u.arm(id)
		if a.Count == 0 {
			return id
		}
		score := a.B[0]/float64(a.Count) +
			math.Sqrt(u.confidence*math.Log(float64(u.total+1))/float64(a.Count))
		if score > bestScore {
			best, bestScore = id, score
		}
	}
	return best
}

func (u *ucb1) Update(armID string, reward float64, _ []float64) {
	a := u.arm(armID)
	a.Count++
	a.B[0] += reward
	u.total++
}

func (u *ucb1) state() []armState { return exportArms(u.arms) }
func (u *ucb1) load(states []armState) {
	u.total = 0
	for _, s := range states {
		s := s
		if len(s.B) == 0 {
			s.B = make([]float64, 1)
		}
		u.arms[s.ID] = &s
		u.total += s.Count
	}
}

// linUCB is contextual UCB with a diagonal approximation of the design
// matrix: per-feature ridge statistics instead of a full matrix inverse.
type linUCB struct {
	alpha float64
	dim   int
	arms  map[string]*armState
}

func newLinUCB(alpha float64, dim int) *linUCB {
	if alpha <= 0 {
		alpha = 1
	}
	if dim <= 0 {
		dim = 1
	}
	return &linUCB{alpha: alpha, dim: dim, arms: make(map[string]*armState)}
}

func (l *linUCB) arm(id string) *armState {
	a, ok := l.arms[id]
	if !ok {
		a = &armState{ID: id, ADiag: identityDiag(l.dim), B: make([]float64, l.dim)}
		l.arms[id] = a
	}
	return a
}

func identityDiag(dim int) []float64 {
	d := make([]float64, dim)
	for i := range d {
		d[i] = 1 // ridge prior
	}
	return d
}

func (l *linUCB) Select(candidates []string, features []float64) string {
	x := l.pad(features)
	best, bestScore := candidates[0], math.Inf(-1)
	for _, id := range candidates {
		a := l.arm(id)
		var mean, varsum float64
		for i := 0; i < l.dim; i++ {
			theta := a.B[i] / a.ADiag[i]
			mean += theta * x[i]
			varsum += x[i] * x[i] / a.ADiag[i]
		}
		score := mean + l.alpha*math.Sqrt(varsum)
		if score > bestScore {
			best, bestScore = id, score
		}
	}
	return best
}

func (l *linUCB) Update(armID string, reward float64, features []float64) {
	x := l.pad(features)
	a := l.arm(armID)
	for i := 0; i < l.dim; i++ {
		a.ADiag[i] += x[i] * x[i]
		a.B[i] += reward * x[i]
	}
	a.Count++
}

// pad fits a feature vector to the policy dimension, with a leading bias term
// when the caller supplies none.
func (l *linUCB) pad(features []float64) []float64 {
	x := make([]float64, l.dim)
	x[0] = 1
	for i := 0; i < len(features) && i < l.dim; i++ {
		x[i] = features[i]
	}
	return x
}

func (l *linUCB) state() []armState { return exportArms(l.arms) }
func (l *linUCB) load(states []armState) {
	for _, s := range states {
		s := s
		if len(s.ADiag) != l.dim {
			s.ADiag = identityDiag(l.dim)
		}
		if len(s.B) != l.dim {
			s.B = make([]float64, l.dim)
		}
		l.arms[s.ID] = &s
	}
}

// exportArms returns arm states sorted by ID for stable snapshots.
func exportArms(arms map[string]*armState) []armState {
	out := make([]armState, 0, len(arms))
	for _, a := range arms {
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
