package highlight

import (
	"github.com/clarityread/readaloud/tts/chunk"
	"github.com/clarityread/readaloud/tts/loop"
)

// Overlay limits.
const (
	DefaultMaxChars  = 10000
	DefaultMaxUnits  = 3000
	DefaultBatchSize = 200
)

// Options bounds overlay construction.
type Options struct {
	MaxChars  int
	MaxUnits  int
	BatchSize int
}

// DefaultOptions returns the standard overlay limits.
func DefaultOptions() Options {
	return Options{
		MaxChars:  DefaultMaxChars,
		MaxUnits:  DefaultMaxUnits,
		BatchSize: DefaultBatchSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.MaxChars <= 0 {
		o.MaxChars = d.MaxChars
	}
	if o.MaxUnits <= 0 {
		o.MaxUnits = d.MaxUnits
	}
	if o.BatchSize <= 0 {
		o.BatchSize = d.BatchSize
	}
	return o
}

// Overlay materializes highlight units in batches, one loop task per
// batch, so that long text never blocks the loop.
type Overlay struct {
	sched   loop.Scheduler
	opts    Options
	scanner *chunk.Scanner

	units   []Unit
	index   *Index
	ready   bool
	started bool
	torn    bool

	onReady    []func(*Index, []Unit)
	onTeardown []func()
}

// NewOverlay prepares an overlay for text. Construction begins with Start.
func NewOverlay(sched loop.Scheduler, text string, opts Options) *Overlay {
	opts = opts.withDefaults()
	return &Overlay{
		sched:   sched,
		opts:    opts,
		scanner: chunk.NewScanner(truncate(text, opts.MaxChars)),
	}
}

// OnReady registers fn to run once every unit has been built.
func (o *Overlay) OnReady(fn func(*Index, []Unit)) {
	o.onReady = append(o.onReady, fn)
}

// OnTeardown registers fn to run when the overlay is torn down.
func (o *Overlay) OnTeardown(fn func()) {
	o.onTeardown = append(o.onTeardown, fn)
}

// Start schedules the first batch.
func (o *Overlay) Start() {
	if o.started || o.torn {
		return
	}
	o.started = true
	o.sched.Post(o.batch)
}

func (o *Overlay) batch() {
	if o.torn || o.ready {
		return
	}

	for n := 0; n < o.opts.BatchSize; n++ {
		if len(o.units) >= o.opts.MaxUnits || !o.scanner.Scan() {
			o.finish()
			return
		}
		o.units = append(o.units, Unit{Content: o.scanner.Text()})
	}

	if len(o.units) >= o.opts.MaxUnits {
		o.finish()
		return
	}
	o.sched.Post(o.batch)
}

func (o *Overlay) finish() {
	o.index = Build(o.units)
	o.ready = true
	for _, fn := range o.onReady {
		fn(o.index, o.units)
	}
}

// Teardown discards the overlay. Pending batches become no-ops.
func (o *Overlay) Teardown() {
	if o.torn {
		return
	}
	o.torn = true
	o.units = nil
	o.index = nil
	for _, fn := range o.onTeardown {
		fn()
	}
}

// Ready reports whether construction has completed.
func (o *Overlay) Ready() bool {
	return o.ready && !o.torn
}

// Torn reports whether Teardown has been called.
func (o *Overlay) Torn() bool {
	return o.torn
}

// Units returns the units built so far.
func (o *Overlay) Units() []Unit {
	return o.units
}

// Index returns the finished index, or nil before the overlay is ready.
func (o *Overlay) Index() *Index {
	if !o.Ready() {
		return nil
	}
	return o.index
}

func truncate(s string, max int) string {
	n := 0
	for i := range s {
		if n == max {
			return s[:i]
		}
		n++
	}
	return s
}
