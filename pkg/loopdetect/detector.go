package loopdetect

import (
	"github.com/tessellate/praxis/pkg/trace"
)

// Config tunes loop detection. The defaults are reasonable starting
// points rather than derived constants; override per deployment.
type Config struct {
	// Window bounds how many recent qualifying steps the self-loop scan
	// walks backward through.
	Window int
	// Threshold is the minimum similarity score for two step contents to
	// count as a repetition.
	Threshold float64
	// MaxRepeatAllowed is the number of consecutive near-identical
	// repetitions tolerated before the run is flagged.
	MaxRepeatAllowed int
	// MinContentLength filters replies shorter than this from the scans.
	// The default of 1 only drops empty contents; raise it to ignore
	// trivial acknowledgements ("OK", "done") as well.
	MinContentLength int
}

// DefaultConfig returns the stock detection parameters.
func DefaultConfig() Config {
	return Config{
		Window:           10,
		Threshold:        0.95,
		MaxRepeatAllowed: 0,
		MinContentLength: 1,
	}
}

// Kind classifies what pattern triggered a detection.
type Kind string

const (
	// KindSelfLoop means one agent kept emitting near-identical content.
	KindSelfLoop Kind = "self_loop"
	// KindSequenceLoop means a short agent cycle repeated itself.
	KindSequenceLoop Kind = "sequence_loop"
)

// Detection describes a flagged repetition pattern.
type Detection struct {
	Kind      Kind
	AgentName string
	CycleLen  int
	Repeats   int
}

// Detector evaluates team traces for repetition. It holds no mutable
// state and is safe for concurrent use.
type Detector struct {
	cfg Config
}

// New creates a detector. Zero-valued config fields fall back to the
// defaults.
func New(cfg Config) *Detector {
	def := DefaultConfig()
	if cfg.Window <= 0 {
		cfg.Window = def.Window
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = def.Threshold
	}
	if cfg.MaxRepeatAllowed < 0 {
		cfg.MaxRepeatAllowed = def.MaxRepeatAllowed
	}
	if cfg.MinContentLength <= 0 {
		cfg.MinContentLength = def.MinContentLength
	}
	return &Detector{cfg: cfg}
}

// IsLooping reports whether the trace shows a repetition pattern.
func (d *Detector) IsLooping(t *trace.TeamTrace) bool {
	return d.Detect(t) != nil
}

// Detect inspects the agent-produced steps of the trace and returns the
// first detected pattern, or nil if the conversation still evolves.
// System and overhead steps never participate.
func (d *Detector) Detect(t *trace.TeamTrace) *Detection {
	steps := d.qualifying(t.AgentSteps())
	if len(steps) < 4 {
		return nil
	}
	if det := d.selfLoop(steps); det != nil {
		return det
	}
	return d.sequenceLoop(steps)
}

// qualifying drops steps too short to score meaningfully.
func (d *Detector) qualifying(steps []trace.TeamStep) []trace.TeamStep {
	out := steps[:0:0]
	for _, s := range steps {
		if len(s.Content) >= d.cfg.MinContentLength {
			out = append(out, s)
		}
	}
	return out
}

// selfLoop scans backward from the latest step, counting consecutive
// earlier steps by the same agent whose content is near-identical to it.
// The scan stops at the first same-agent step that shows genuine content
// evolution.
func (d *Detector) selfLoop(steps []trace.TeamStep) *Detection {
	last := steps[len(steps)-1]
	start := len(steps) - 1 - d.cfg.Window
	if start < 0 {
		start = 0
	}
	repeats := 0
	for i := len(steps) - 2; i >= start; i-- {
		if steps[i].AgentName != last.AgentName {
			continue
		}
		if Similarity(steps[i].Content, last.Content) < d.cfg.Threshold {
			break
		}
		repeats++
	}
	if repeats > d.cfg.MaxRepeatAllowed {
		return &Detection{Kind: KindSelfLoop, AgentName: last.AgentName, Repeats: repeats}
	}
	return nil
}

// sequenceLoop checks cycle lengths 2 and 3, covering A-B-A-B and
// A-B-C-A-B-C hand-off patterns. A match requires the same agent at every
// offset and near-identical content at every offset.
func (d *Detector) sequenceLoop(steps []trace.TeamStep) *Detection {
	for _, cycle := range []int{2, 3} {
		if len(steps) < 2*cycle {
			continue
		}
		recent := steps[len(steps)-cycle:]
		prior := steps[len(steps)-2*cycle : len(steps)-cycle]
		match := true
		for i := 0; i < cycle; i++ {
			if recent[i].AgentName != prior[i].AgentName {
				match = false
				break
			}
			if Similarity(recent[i].Content, prior[i].Content) < d.cfg.Threshold {
				match = false
				break
			}
		}
		if match {
			return &Detection{Kind: KindSequenceLoop, CycleLen: cycle, Repeats: 2}
		}
	}
	return nil
}
