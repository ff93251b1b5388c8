package mock

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"time"

	"github.com/cursor-telemetry/backend/internal/pipeline"
	"github.com/cursor-telemetry/backend/internal/session"
)

const tickInterval = 300 * time.Millisecond

// workload is one simulated project the fake developer works in.
type workload struct {
	application string
	workingDir  string
	pid         int
	files       []string
	tools       []string
	prompts     []string
}

var workloads = []workload{
	{
		application: "cursor",
		workingDir:  "/home/user/myproject",
		pid:         4242,
		files:       []string{"main.go", "handler.go", "store.go", "store_test.go"},
		tools:       []string{"Read", "Write", "Edit", "Bash", "Grep"},
		prompts:     []string{"refactor this function", "why does this test fail", "add error handling"},
	},
	{
		application: "cursor",
		workingDir:  "/home/user/webapp",
		pid:         5151,
		files:       []string{"app.tsx", "api.ts", "styles.css"},
		tools:       []string{"Read", "Edit", "Bash"},
		prompts:     []string{"center this div", "fetch in a useEffect", "type this response"},
	},
	{
		application: "vscode",
		workingDir:  "/home/user/api-server",
		pid:         6060,
		files:       []string{"routes.py", "models.py", "test_routes.py"},
		tools:       []string{"Read", "Grep", "Bash"},
		prompts:     []string{"add pagination", "why is this slow"},
	},
}

// Generator feeds the pipeline a plausible synthetic activity stream:
// bursts of edits and tool calls, the occasional duplicate event,
// explicit session_end markers followed by a switch to another project.
type Generator struct {
	pipe        *pipeline.Pipeline
	rng         *rand.Rand
	current     int
	ticks       int
	editSeq     int
	lastContent string
	lastFile    string
}

func NewGenerator(pipe *pipeline.Pipeline) *Generator {
	return &Generator{
		pipe: pipe,
		rng:  rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (g *Generator) Start(ctx context.Context) {
	go g.run(ctx)
}

func (g *Generator) run(ctx context.Context) {
	ticker := time.NewTicker(tickInterval)
	defer ticker.Stop()

	log.Println("Mock generator started")
	for {
		select {
		case <-ctx.Done():
			log.Println("Mock generator stopped")
			return
		case <-ticker.C:
			for _, ev := range g.step(time.Now().UnixMilli()) {
				var err error
				if ev.Type == session.EventSessionEnd {
					err = g.pipe.SubmitPriority(ev)
				} else {
					err = g.pipe.Submit(ev)
				}
				if err != nil {
					log.Printf("mock submit: %v", err)
					return
				}
			}
		}
	}
}

// step produces the events for one tick.
func (g *Generator) step(now int64) []session.Event {
	w := workloads[g.current]
	g.ticks++

	// Wrap up the current "session" now and then and move to another
	// project, exercising both the explicit-end and context-switch paths.
	if g.ticks > 10 && g.rng.Intn(15) == 0 {
		end := session.Event{
			Type:             session.EventSessionEnd,
			Timestamp:        now,
			ProcessID:        w.pid,
			WorkingDirectory: w.workingDir,
			Application:      w.application,
		}
		g.current = g.rng.Intn(len(workloads))
		g.ticks = 0
		g.lastContent = ""
		return []session.Event{end}
	}

	var out []session.Event
	n := 1 + g.rng.Intn(3)
	for i := 0; i < n; i++ {
		out = append(out, g.activityEvent(w, now+int64(i)))
	}

	// Duplicate the previous event occasionally; the deduplicator
	// should collapse these.
	if g.lastContent != "" && g.rng.Intn(5) == 0 {
		out = append(out, session.Event{
			Type:             session.EventFileChange,
			Timestamp:        now + int64(n),
			Content:          g.lastContent,
			FilePath:         g.lastFile,
			ProcessID:        w.pid,
			WorkingDirectory: w.workingDir,
			Application:      w.application,
		})
	}
	return out
}

func (g *Generator) activityEvent(w workload, ts int64) session.Event {
	ev := session.Event{
		Timestamp:        ts,
		ProcessID:        w.pid,
		WorkingDirectory: w.workingDir,
		Application:      w.application,
	}

	switch g.rng.Intn(4) {
	case 0:
		ev.Type = session.EventConversation
		ev.Content = w.prompts[g.rng.Intn(len(w.prompts))]
	case 1:
		ev.Type = session.EventToolCall
		ev.Content = w.tools[g.rng.Intn(len(w.tools))]
	default:
		g.editSeq++
		ev.Type = session.EventFileChange
		ev.FilePath = w.workingDir + "/" + w.files[g.rng.Intn(len(w.files))]
		ev.Content = fmt.Sprintf("edit #%d", g.editSeq)
		g.lastContent = ev.Content
		g.lastFile = ev.FilePath
	}
	return ev
}
