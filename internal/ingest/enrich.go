package ingest

import (
	"sync"
	"time"

	"github.com/shirou/gopsutil/v3/process"

	"github.com/cursor-telemetry/backend/internal/session"
)

const cacheTTL = 30 * time.Second

type procInfo struct {
	name    string
	cwd     string
	fetched time.Time
}

// Enricher fills process-derived context fields (Application,
// WorkingDirectory) on events that arrive with only a PID. Lookups are
// best-effort: a vanished or unreadable process leaves the event as
// submitted. Results are cached briefly so event bursts from one editor
// process don't hammer the process table.
type Enricher struct {
	mu    sync.Mutex
	cache map[int]procInfo
	now   func() time.Time
	// lookup resolves a pid to (name, cwd); swapped out in tests.
	lookup func(pid int) (string, string, error)
}

func NewEnricher() *Enricher {
	return &Enricher{
		cache:  make(map[int]procInfo),
		now:    time.Now,
		lookup: lookupProcess,
	}
}

func lookupProcess(pid int) (string, string, error) {
	p, err := process.NewProcess(int32(pid))
	if err != nil {
		return "", "", err
	}
	name, err := p.Name()
	if err != nil {
		return "", "", err
	}
	// Cwd is unavailable on some platforms/permissions; the name alone
	// is still worth having.
	cwd, _ := p.Cwd()
	return name, cwd, nil
}

// Enrich fills empty context fields in place. Events without a PID, or
// with both fields already set, are left untouched.
func (e *Enricher) Enrich(ev *session.Event) {
	if ev.ProcessID == 0 {
		return
	}
	if ev.Application != "" && ev.WorkingDirectory != "" {
		return
	}

	info, ok := e.cached(ev.ProcessID)
	if !ok {
		name, cwd, err := e.lookup(ev.ProcessID)
		if err != nil {
			// Negative-cache the failure too, so a dead PID in a burst
			// costs one lookup, not one per event.
			name, cwd = "", ""
		}
		info = procInfo{name: name, cwd: cwd, fetched: e.now()}
		e.mu.Lock()
		e.cache[ev.ProcessID] = info
		e.mu.Unlock()
	}

	if ev.Application == "" {
		ev.Application = info.name
	}
	if ev.WorkingDirectory == "" {
		ev.WorkingDirectory = info.cwd
	}
}

func (e *Enricher) cached(pid int) (procInfo, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	info, ok := e.cache[pid]
	if !ok || e.now().Sub(info.fetched) > cacheTTL {
		return procInfo{}, false
	}
	return info, true
}
