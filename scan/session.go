// Copyright 2026 The Unearth Authors
// SPDX-License-Identifier: Apache-2.0

package scan

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/unearth-project/unearth/lib/binhash"
	"github.com/unearth-project/unearth/lib/ledger"
	"github.com/unearth-project/unearth/lib/region"
)

// Options are the scheduler policy knobs.
type Options struct {
	// Workers is the scan worker pool size. Zero or negative means
	// one worker per CPU.
	Workers int

	// MaxDepth bounds artifact nesting: tasks at this depth are not
	// matched further and become unrecognized leaves. This is what
	// terminates crafted cyclic container inputs. Zero means 16.
	MaxDepth int

	// MinRegionSize is the smallest region worth a match attempt.
	// Regions smaller than the smallest registered signature are
	// skipped regardless. Zero means 4.
	MinRegionSize int64

	// DedupByContentHash links byte-identical regions instead of
	// re-scanning them. Dedup is scoped to the ancestor chain (cycle
	// detection) and to siblings produced by the same task, which
	// keeps the result tree deterministic under any worker
	// scheduling; see the package documentation.
	DedupByContentHash bool

	// GapRescan re-enqueues unclaimed gaps as sub-scans at the next
	// depth instead of keeping them as terminal unrecognized leaves.
	// This gives zero-signature fallback parsers a chance at gap
	// content.
	GapRescan bool

	// PoisonThreshold is the number of unexpected faults after which
	// a variant is skipped for the rest of the session. Zero means 3.
	PoisonThreshold int

	// Logger receives debug/warn events. Nil discards.
	Logger *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Workers <= 0 {
		o.Workers = runtime.GOMAXPROCS(0)
	}
	if o.MaxDepth <= 0 {
		o.MaxDepth = 16
	}
	if o.MinRegionSize <= 0 {
		o.MinRegionSize = 4
	}
	if o.PoisonThreshold <= 0 {
		o.PoisonThreshold = 3
	}
	if o.Logger == nil {
		o.Logger = slog.New(slog.DiscardHandler)
	}
	return o
}

// Failure records one unexpected fault for the session report.
// Structural mismatches are not failures; only contract violations
// and engine-level errors appear here.
type Failure struct {
	// Parser is the offending variant, empty for engine-level
	// errors (e.g. an I/O error during the signature sweep).
	Parser string `json:"parser,omitempty"`

	// Path is the tree path of the task that observed the fault.
	Path string `json:"path"`

	// Detail describes the fault.
	Detail string `json:"detail"`
}

// Result is the outcome of a session: the artifact tree plus the
// flat failure and poison report. Serialization is the caller's
// responsibility (see the report package).
type Result struct {
	// Root is the tree root, covering the whole input buffer.
	Root *Artifact

	// Incomplete is true when the session was cancelled; the tree
	// holds everything validated before the stop signal.
	Incomplete bool

	// Failures lists unexpected faults, sorted for reproducibility.
	Failures []Failure

	// Poisoned lists variants skipped after repeated faults, sorted.
	Poisoned []string

	// Options echoes the effective engine options the session ran
	// with, defaults resolved. Reports embed this so a result can be
	// reproduced from the document alone.
	Options Options
}

// Session runs one scan over one root buffer. Create with [New],
// run once with [Session.Run]. A session is not reusable: poison
// state, the dedup index, and the failure report are per-run.
type Session struct {
	registry *Registry
	opts     Options
	logger   *slog.Logger

	queue   *taskQueue
	aborted atomic.Bool

	mu       sync.Mutex
	failures []Failure
	counts   map[string]int
	banned   map[string]bool
}

// New creates a session against a frozen registry.
func New(registry *Registry, opts Options) (*Session, error) {
	if !registry.Frozen() {
		return nil, fmt.Errorf("scan: registry must be frozen before use")
	}
	opts = opts.withDefaults()
	return &Session{
		registry: registry,
		opts:     opts,
		logger:   opts.Logger,
		queue:    newTaskQueue(),
		counts:   make(map[string]int),
		banned:   make(map[string]bool),
	}, nil
}

// task is one unit of scheduler work: scan one window of one buffer.
// A task is processed end to end by a single worker; only the child
// tasks it produces go back to the pool.
type task struct {
	buf    *region.Buffer
	window region.Region
	led    *ledger.Ledger
	node   *Artifact
	depth  int
	path   string

	// lineage holds the content hashes of this task's buffer and
	// all ancestors, for cycle detection when dedup is enabled.
	lineage []binhash.Hash

	// seen maps content hashes to paths for siblings enqueued by
	// this task. Single-writer: only the worker processing the task
	// touches it.
	seen map[binhash.Hash]string
}

// Run executes the scan and returns the result tree. On context
// cancellation, in-flight validations finish, no new tasks are
// dequeued, and the partial result is returned together with
// [ErrAborted].
func (s *Session) Run(ctx context.Context, buf *region.Buffer) (*Result, error) {
	root := &Artifact{Region: buf.Whole()}

	rootTask := &task{
		buf:    buf,
		window: buf.Whole(),
		led:    ledger.New(),
		node:   root,
		path:   "",
	}
	if s.opts.DedupByContentHash {
		if h, err := s.hashBuffer(buf); err == nil {
			rootTask.lineage = []binhash.Hash{h}
		} else {
			s.recordFailure("", "", fmt.Sprintf("hashing root buffer: %v", err))
		}
	}
	s.queue.push(rootTask)

	// Abort watcher: a cancelled context closes the queue so that
	// workers stop dequeuing. The watcher itself exits when the run
	// finishes normally.
	finished := make(chan struct{})
	go func() {
		select {
		case <-ctx.Done():
			s.aborted.Store(true)
			s.queue.close()
		case <-finished:
		}
	}()

	var wg sync.WaitGroup
	for range s.opts.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				t, ok := s.queue.pop()
				if !ok {
					return
				}
				s.process(t)
				s.queue.done()
			}
		}()
	}
	wg.Wait()
	close(finished)

	// Tasks still queued at abort never ran; their nodes stay in the
	// tree, marked so the caller knows the content was not examined.
	for _, t := range s.queue.drain() {
		t.node.Incomplete = true
		s.finalizeLeaf(t.node)
	}

	result := &Result{
		Root:       root,
		Incomplete: s.aborted.Load(),
		Failures:   s.sortedFailures(),
		Poisoned:   s.sortedPoisoned(),
		Options:    s.opts,
	}

	s.logger.Info("scan session finished",
		"artifacts", root.Count(),
		"failures", len(result.Failures),
		"poisoned", len(result.Poisoned),
		"incomplete", result.Incomplete)

	if result.Incomplete {
		return result, fmt.Errorf("%w: %w", ErrAborted, context.Cause(ctx))
	}
	return result, nil
}

// process scans one window: sweep for candidates, dispatch in order,
// claim validated ranges, then turn claims and gaps into tree nodes
// and child tasks.
func (s *Session) process(t *task) {
	index := s.registry.index
	minSize := s.opts.MinRegionSize
	if index.minSpan > minSize {
		minSize = index.minSpan
	}
	if t.depth >= s.opts.MaxDepth || t.window.Len < minSize {
		s.finalizeLeaf(t.node)
		return
	}

	candidates, err := index.collect(t.buf, t.window)
	if err != nil {
		s.recordFailure("", t.path, fmt.Sprintf("signature sweep: %v", err))
		s.finalizeLeaf(t.node)
		return
	}
	candidates = s.withFallbacks(candidates, t.window.Off)

	var found []*validated
	for _, c := range candidates {
		parser := s.registry.parser(c.ordinal)
		if s.isPoisoned(parser.Name()) {
			continue
		}
		// Offsets consumed by an earlier match are not match
		// positions; the search simply moves past them.
		if t.led.Claimed(c.start) {
			continue
		}

		v, violation := attempt(parser, t.buf, t.window, c.start)
		if violation != nil {
			s.violation(violation, t.path)
			continue
		}
		if v == nil {
			s.logger.Debug("structural mismatch",
				"parser", parser.Name(), "path", t.path, "offset", c.start)
			continue
		}

		if err := t.led.Claim(v.claim); err != nil {
			// Overlapping claims mean two tasks were scheduled over
			// the same bytes — a scheduling bug. Fatal to this
			// artifact only.
			s.recordFailure(v.parser, t.path, fmt.Sprintf("claim rejected: %v", err))
			continue
		}
		found = append(found, v)
	}

	// Nothing validated anywhere in the window, and fallbacks were
	// already tried at its start: the node is a plain unrecognized
	// leaf. Rescanning the all-gap window would only repeat the same
	// attempts.
	if len(found) == 0 {
		s.finalizeLeaf(t.node)
		return
	}

	gaps := t.led.Gaps(t.window)

	// A window wholly consumed by a single artifact is that
	// artifact: fold it into the task's own node instead of nesting
	// a redundant wrapper. This is the common case for extracted
	// children that parse cleanly.
	if len(found) == 1 && found[0].claim == t.window && len(gaps) == 0 {
		s.populate(t, t.node, found[0])
		return
	}

	// Otherwise the node becomes a container: validated artifacts
	// and unrecognized gaps, interleaved in ascending offset order.
	// Offsets in child nodes are relative to the window start, i.e.
	// to the containing node's own content.
	children := make([]*Artifact, 0, len(found)+len(gaps))
	fi, gi := 0, 0
	for fi < len(found) || gi < len(gaps) {
		if gi >= len(gaps) || (fi < len(found) && found[fi].claim.Off <= gaps[gi].Off) {
			v := found[fi]
			fi++
			node := &Artifact{
				PathHint: fmt.Sprintf("%s-0x%x", v.parser, v.claim.Off-t.window.Off),
			}
			children = append(children, node)
			s.populate(t, node, v)
		} else {
			gap := gaps[gi]
			gi++
			node := &Artifact{
				PathHint: fmt.Sprintf("unrecognized-0x%x", gap.Off-t.window.Off),
				Region:   region.Region{Off: gap.Off - t.window.Off, Len: gap.Len},
			}
			children = append(children, node)
			s.scheduleGap(t, node, gap)
		}
	}
	t.node.Children = children
}

// populate fills an artifact node from a validated dispatch and
// enqueues scan tasks for its extracted children.
func (s *Session) populate(t *task, node *Artifact, v *validated) {
	// The carve may trim the claim; shift the node's region
	// accordingly in whatever coordinate space it already has.
	if node.Region.Len == 0 {
		node.Region = region.Region{Off: v.claim.Off - t.window.Off, Len: v.claim.Len}
	}
	node.Region = region.Region{
		Off: node.Region.Off + (v.carved.Off - v.claim.Off),
		Len: v.carved.Len,
	}
	node.Format = v.parser
	node.Labels = append([]string(nil), v.desc.Labels...)
	// The node may already carry scheduler-set metadata (the
	// synthesized marker); parser metadata merges over it.
	if len(node.Metadata) == 0 {
		node.Metadata = v.desc.Metadata
	} else {
		merged := make(map[string]any, len(node.Metadata)+len(v.desc.Metadata))
		for k, val := range node.Metadata {
			merged[k] = val
		}
		for k, val := range v.desc.Metadata {
			merged[k] = val
		}
		node.Metadata = merged
	}

	if len(v.children) == 0 {
		return
	}
	node.Children = make([]*Artifact, len(v.children))
	// t.path already names the task's own node; only freshly created
	// container children extend it.
	path := t.path
	if node != t.node && node.PathHint != "" {
		path = t.path + "/" + node.PathHint
	}
	for i, child := range v.children {
		name := childName(child.PathHint, i)
		childNode := &Artifact{PathHint: name}
		node.Children[i] = childNode

		var childBuf *region.Buffer
		var err error
		if child.Data != nil {
			childNode.Region = region.Region{Off: 0, Len: int64(len(child.Data))}
			childNode.Metadata = map[string]any{"synthesized": true}
			childBuf = region.FromBytes(child.Data)
		} else {
			// child.Region is relative to the claim start, which is
			// the parent artifact's content space.
			childNode.Region = *child.Region
			absolute := region.Region{Off: v.claim.Off + child.Region.Off, Len: child.Region.Len}
			childBuf, err = t.buf.View(absolute)
			if err != nil {
				// Unreachable if dispatch validated bounds; belt and
				// braces against engine bugs.
				s.recordFailure(v.parser, path, fmt.Sprintf("child view %s: %v", absolute, err))
				s.finalizeLeaf(childNode)
				continue
			}
		}
		s.enqueueChild(t, childNode, childBuf, path+"/"+name)
	}
}

// enqueueChild schedules a scan of an extracted child buffer, or
// settles the node immediately when depth, size, or dedup policy
// says it should not be scanned.
func (s *Session) enqueueChild(t *task, node *Artifact, buf *region.Buffer, path string) {
	index := s.registry.index
	minSize := s.opts.MinRegionSize
	if index.minSpan > minSize {
		minSize = index.minSpan
	}
	if t.depth+1 >= s.opts.MaxDepth || buf.Size() < minSize {
		s.finalizeLeaf(node)
		return
	}

	lineage := t.lineage
	if s.opts.DedupByContentHash {
		h, err := s.hashBuffer(buf)
		if err != nil {
			s.recordFailure("", path, fmt.Sprintf("hashing child: %v", err))
		} else {
			for _, ancestor := range t.lineage {
				if h == ancestor {
					// The child is byte-identical to an ancestor: a
					// self-referential container. Link, do not recurse.
					s.linkDuplicate(node, h, true)
					return
				}
			}
			if t.seen == nil {
				t.seen = make(map[binhash.Hash]string)
			}
			if _, dup := t.seen[h]; dup {
				s.linkDuplicate(node, h, false)
				return
			}
			t.seen[h] = path
			lineage = make([]binhash.Hash, len(t.lineage), len(t.lineage)+1)
			copy(lineage, t.lineage)
			lineage = append(lineage, h)
		}
	}

	s.queue.push(&task{
		buf:     buf,
		window:  buf.Whole(),
		led:     ledger.New(),
		node:    node,
		depth:   t.depth + 1,
		path:    path,
		lineage: lineage,
	})
}

// scheduleGap settles an unclaimed gap: a terminal unrecognized leaf
// by default, or a secondary scan over the same buffer and ledger
// when gap rescanning is enabled.
func (s *Session) scheduleGap(t *task, node *Artifact, gap region.Region) {
	if !s.opts.GapRescan || t.depth+1 >= s.opts.MaxDepth {
		s.finalizeLeaf(node)
		return
	}
	s.queue.push(&task{
		buf:     t.buf,
		window:  gap,
		led:     t.led,
		node:    node,
		depth:   t.depth + 1,
		path:    t.path + "/" + node.PathHint,
		lineage: t.lineage,
	})
}

// withFallbacks inserts zero-signature variants as candidates at the
// window start, after any signature-derived candidates at that same
// offset. Fallbacks are never tried at interior offsets.
func (s *Session) withFallbacks(candidates []candidate, start int64) []candidate {
	fallbacks := s.registry.index.fallbacks
	if len(fallbacks) == 0 {
		return candidates
	}
	insert := 0
	for insert < len(candidates) && candidates[insert].start == start {
		insert++
	}
	merged := make([]candidate, 0, len(candidates)+len(fallbacks))
	merged = append(merged, candidates[:insert]...)
	for _, ordinal := range fallbacks {
		merged = append(merged, candidate{start: start, ordinal: ordinal})
	}
	merged = append(merged, candidates[insert:]...)
	return merged
}

func (s *Session) hashBuffer(buf *region.Buffer) (binhash.Hash, error) {
	reader, err := buf.SectionReader(buf.Whole())
	if err != nil {
		return binhash.Hash{}, err
	}
	return binhash.RegionReader(reader)
}

func (s *Session) linkDuplicate(node *Artifact, h binhash.Hash, cyclic bool) {
	node.addLabel(LabelDuplicate)
	if node.Metadata == nil {
		node.Metadata = make(map[string]any)
	}
	node.Metadata["content_hash"] = binhash.Format(h)
	if cyclic {
		node.Metadata["cyclic"] = true
	}
}

// finalizeLeaf settles a node that will not be scanned (or yielded
// nothing): unless a parser already described it, it is unrecognized
// data.
func (s *Session) finalizeLeaf(node *Artifact) {
	if node.Format == "" && len(node.Labels) == 0 {
		node.Labels = []string{LabelUnrecognized}
	}
}

func (s *Session) violation(v *ContractViolation, path string) {
	s.logger.Warn("parser contract violation",
		"parser", v.Parser, "path", path, "detail", v.Detail)

	s.mu.Lock()
	s.failures = append(s.failures, Failure{Parser: v.Parser, Path: path, Detail: v.Detail})
	s.counts[v.Parser]++
	crossed := s.counts[v.Parser] == s.opts.PoisonThreshold
	if crossed {
		s.banned[v.Parser] = true
	}
	s.mu.Unlock()

	if crossed {
		s.logger.Warn("parser poisoned for the remainder of the session",
			"parser", v.Parser, "faults", s.opts.PoisonThreshold)
	}
}

func (s *Session) isPoisoned(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.banned[name]
}

func (s *Session) recordFailure(parser, path, detail string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, Failure{Parser: parser, Path: path, Detail: detail})
}

func (s *Session) sortedFailures() []Failure {
	s.mu.Lock()
	defer s.mu.Unlock()
	failures := append([]Failure(nil), s.failures...)
	sort.Slice(failures, func(i, j int) bool {
		if failures[i].Path != failures[j].Path {
			return failures[i].Path < failures[j].Path
		}
		if failures[i].Parser != failures[j].Parser {
			return failures[i].Parser < failures[j].Parser
		}
		return failures[i].Detail < failures[j].Detail
	})
	return failures
}

func (s *Session) sortedPoisoned() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	poisoned := make([]string, 0, len(s.banned))
	for name := range s.banned {
		poisoned = append(poisoned, name)
	}
	sort.Strings(poisoned)
	return poisoned
}

// taskQueue is the scheduler's work queue: unbounded storage drained
// by a bounded worker pool, with an explicit outstanding-task count
// for completion instead of join-on-empty polling. The count covers
// queued and in-flight tasks; when it reaches zero the queue closes
// and blocked workers return.
type taskQueue struct {
	mu          sync.Mutex
	cond        *sync.Cond
	items       []*task
	outstanding int
	closed      bool
}

func newTaskQueue() *taskQueue {
	q := &taskQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// push enqueues a task. Pushing after close is allowed — a worker
// finishing its task during an abort may still produce children —
// but the tasks are never popped; drain collects them for
// incomplete-marking.
func (q *taskQueue) push(t *task) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outstanding++
	q.items = append(q.items, t)
	q.cond.Signal()
}

// pop blocks until a task is available or the queue is closed.
func (q *taskQueue) pop() (*task, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for len(q.items) == 0 && !q.closed {
		q.cond.Wait()
	}
	if q.closed {
		return nil, false
	}
	t := q.items[0]
	q.items = q.items[1:]
	return t, true
}

// done marks one task complete. The queue closes itself when the
// last outstanding task completes.
func (q *taskQueue) done() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.outstanding--
	if q.outstanding == 0 && !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
}

// close stops dequeuing immediately (abort path).
func (q *taskQueue) close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		q.cond.Broadcast()
	}
}

// drain removes and returns all tasks that never ran.
func (q *taskQueue) drain() []*task {
	q.mu.Lock()
	defer q.mu.Unlock()
	rest := q.items
	q.items = nil
	return rest
}
