package reposet

import (
	"strings"
	"sync"
	"time"
)

// Outcome is the per-repo update result (§4.6).
type Outcome int

const (
	// OutcomePending means the repo has not been attempted yet this run.
	OutcomePending Outcome = iota
	OutcomeOK
	OutcomeUpToDate
	OutcomeError
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOK:
		return "ok"
	case OutcomeUpToDate:
		return "up to date"
	case OutcomeError:
		return "error"
	default:
		return "pending"
	}
}

// Repo is one configured repository: its servers, cache path, and the
// transient per-run state mutated by the downloader and repack worker (§3).
type Repo struct {
	Name        string
	Servers     []string // URL templates, may contain $repo / $arch
	Arch        string   // per-repo arch override, empty = use default
	CachePath   string   // <cachedir>/<name>.files
	Force       bool     // second -u doubles as force-update

	mu         sync.Mutex
	serverIdx  int
	outcome    Outcome
	lastErr    error
	bytesMoved int64
	started    time.Time
	finished   time.Time
}

// NewRepo constructs a Repo with server index reset to zero.
func NewRepo(name string, servers []string, arch, cachePath string) *Repo {
	return &Repo{Name: name, Servers: servers, Arch: arch, CachePath: cachePath}
}

// NextServerURL substitutes $repo/$arch into the next untried server
// template and advances the server index. The second return value is false
// once all servers are exhausted (§3 invariant: server_idx <= len(servers)).
func (r *Repo) NextServerURL(defaultArch string) (string, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.serverIdx >= len(r.Servers) {
		return "", false
	}

	arch := r.Arch
	if arch == "" {
		arch = defaultArch
	}

	tmpl := r.Servers[r.serverIdx]
	r.serverIdx++

	url := strings.ReplaceAll(tmpl, "$repo", r.Name)
	url = strings.ReplaceAll(url, "$arch", arch)
	return url + "/" + r.Name + ".files", true
}

// ResetServerIndex rewinds to the first server, used when starting a fresh
// update attempt for this repo.
func (r *Repo) ResetServerIndex() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.serverIdx = 0
}

// SetOutcome records the final per-repo update outcome (§4.6).
func (r *Repo) SetOutcome(o Outcome, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.outcome = o
	r.lastErr = err
}

// Outcome returns the current outcome and last error, if any.
func (r *Repo) Outcome() (Outcome, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.outcome, r.lastErr
}

// AddBytes accumulates downloaded bytes for the aggregate summary line (§4.6).
func (r *Repo) AddBytes(n int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.bytesMoved += n
}

// Bytes returns the total bytes downloaded for this repo this run.
func (r *Repo) Bytes() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.bytesMoved
}

// MarkStarted/MarkFinished bracket a repo's update attempt for timing.
func (r *Repo) MarkStarted() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.started = time.Now()
}

func (r *Repo) MarkFinished() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.finished = time.Now()
}

// Duration reports the elapsed time of the last update attempt.
func (r *Repo) Duration() time.Duration {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.finished.Before(r.started) {
		return 0
	}
	return r.finished.Sub(r.started)
}
