// Package interview drives one spoken interview per session: serving the
// scripted questions, evaluating each answer's topic coverage, deciding
// between follow-up and advance, and producing the final score.
package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/MrWong99/kolloq/internal/detect"
	"github.com/MrWong99/kolloq/internal/gateway"
	"github.com/MrWong99/kolloq/internal/observe"
	"github.com/MrWong99/kolloq/internal/question"
	"github.com/MrWong99/kolloq/internal/reflection"
)

// TurnType classifies the text handed to the candidate.
type TurnType string

const (
	// TurnMain is a scripted question.
	TurnMain TurnType = "main"
	// TurnFollowUp is a generated probe on a missing subtopic.
	TurnFollowUp TurnType = "follow_up"
	// TurnCompletion signals that the script is exhausted.
	TurnCompletion TurnType = "completion"
)

// Turn is one utterance to deliver to the candidate.
type Turn struct {
	QuestionID string   `json:"id"`
	Text       string   `json:"text"`
	Type       TurnType `json:"type"`
}

// State is the lifecycle phase of a session.
type State string

const (
	StateRunning   State = "running"
	StateCompleted State = "completed"
)

// Result is the outcome of evaluating one answer.
type Result struct {
	NeedsFollowUp   bool     `json:"needs_followup"`
	CoveragePercent float64  `json:"coverage_percent"`
	Missing         []string `json:"missing"`
}

// Controller tuning.
const (
	// DefaultCoverageThreshold is the coverage percentage below which a
	// follow-up is asked, when configuration does not override it.
	DefaultCoverageThreshold = 80.0

	// maxConsecutiveFollowUps caps follow-ups on one question; the next
	// answer after the cap always advances.
	maxConsecutiveFollowUps = 2

	// enrichmentWait bounds how long an answer evaluation waits for the
	// current question's metadata before proceeding without it.
	enrichmentWait = 2 * time.Second
	enrichmentPoll = 100 * time.Millisecond

	scoreFloor = 60
	scoreCeil  = 95
)

const (
	introText      = "Benvenuto! Iniziamo il colloquio. Rispondi con calma e con tutti i dettagli che ritieni utili."
	completionText = "Il colloquio è terminato. Grazie per il tuo tempo!"
)

// Controller errors.
var (
	ErrCompleted        = errors.New("interview: session already completed")
	ErrQuestionMismatch = errors.New("interview: answer does not match the current question")
	ErrEmptyScript      = errors.New("interview: no questions loaded")
)

// Controller runs one interview session. All exported methods are safe for
// concurrent use; calls on the same session serialise on an internal mutex.
type Controller struct {
	id        string
	store     *question.Store
	detector  detect.Detector
	gw        *gateway.Gateway
	reflector *reflection.Reflector
	threshold float64
	metrics   *observe.Metrics
	logger    *slog.Logger

	started time.Time

	mu           sync.Mutex
	state        State
	cursor       int
	introServed  bool
	asked        map[string]struct{}
	answers      map[string][]string
	coverageByID map[string]float64
	missingView  []string
	viewFor      string
	followUps    int
	followUpTxt  string
	followUpFor  string
	coverages    []float64
	score        int
}

// Option configures a Controller.
type Option func(*Controller)

// WithCoverageThreshold overrides the follow-up decision threshold (0..100).
func WithCoverageThreshold(percent float64) Option {
	return func(c *Controller) { c.threshold = percent }
}

// WithReflector attaches interviewer note keeping.
func WithReflector(r *reflection.Reflector) Option {
	return func(c *Controller) { c.reflector = r }
}

// WithMetrics attaches metric recording.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithLogger sets the session logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Controller) { c.logger = l }
}

// NewController builds a session bound to the given script store. The store
// reference is stable for the session's lifetime; enrichment fields are read
// live as the background worker fills them.
func NewController(id string, store *question.Store, detector detect.Detector, gw *gateway.Gateway, opts ...Option) *Controller {
	c := &Controller{
		id:           id,
		store:        store,
		detector:     detector,
		gw:           gw,
		threshold:    DefaultCoverageThreshold,
		logger:       slog.Default(),
		state:        StateRunning,
		started:      time.Now(),
		asked:        make(map[string]struct{}),
		answers:      make(map[string][]string),
		coverageByID: make(map[string]float64),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.With("component", "interview", "session_id", id)
	return c
}

// ID returns the session identifier.
func (c *Controller) ID() string { return c.id }

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// CurrentQuestion returns the next text to deliver. A cached follow-up wins
// over the scripted question; an exhausted script yields a completion turn,
// never an error. The first main turn is prefixed with a short greeting.
func (c *Controller) CurrentQuestion(ctx context.Context) (Turn, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCompleted {
		return Turn{Text: completionText, Type: TurnCompletion}, nil
	}
	if c.store.Len() == 0 {
		return Turn{}, ErrEmptyScript
	}

	if c.followUpTxt != "" {
		q, _ := c.store.At(c.cursor)
		return Turn{QuestionID: q.ID, Text: c.followUpTxt, Type: TurnFollowUp}, nil
	}

	q, ok := c.currentLocked(ctx)
	if !ok {
		return Turn{Text: completionText, Type: TurnCompletion}, nil
	}

	text := q.Prompt
	if !c.introServed {
		text = introText + " " + text
		c.introServed = true
	}
	c.asked[q.ID] = struct{}{}
	return Turn{QuestionID: q.ID, Text: text, Type: TurnMain}, nil
}

// SubmitAnswer evaluates one answer against the current question's subtopics
// and either caches a follow-up or advances the cursor. The follow-up turn's
// own answer is evaluated against the same question; the per-session missing
// view only ever shrinks. qid, when non-empty, must match the current
// question.
func (c *Controller) SubmitAnswer(ctx context.Context, qid, text string) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCompleted {
		return Result{}, ErrCompleted
	}
	q, ok := c.currentLocked(ctx)
	if !ok {
		return Result{}, ErrEmptyScript
	}
	if qid != "" && qid != q.ID {
		return Result{}, fmt.Errorf("%w: got %q, current is %q", ErrQuestionMismatch, qid, q.ID)
	}

	c.answers[q.ID] = append(c.answers[q.ID], text)
	if c.reflector != nil {
		c.reflector.Observe(ctx, "candidato", text)
	}

	// A question that never got metadata cannot be evaluated; full credit,
	// advance.
	if !q.Enriched() {
		c.logger.Debug("question has no metadata, advancing", "question_id", q.ID)
		c.recordAndAdvance(100)
		return Result{CoveragePercent: 100, Missing: []string{}}, nil
	}

	missingBefore := c.missingFor(q)
	focus := c.followUpFor
	if focus == "" && len(missingBefore) > 0 {
		focus = missingBefore[0]
	}

	start := time.Now()
	res := c.detector.Detect(ctx, text, topicsFor(q, missingBefore), focus)
	if c.metrics != nil {
		c.metrics.RecordDetection(ctx, time.Since(start), detectorName(c.detector))
	}

	missing := subtract(missingBefore, res.Covered)
	c.missingView = missing
	coverage := 100 * (1 - float64(len(missing))/float64(len(q.Subtopics)))

	needsFollowUp := coverage < c.threshold && len(missing) > 0 && c.followUps < maxConsecutiveFollowUps

	if !needsFollowUp {
		if c.followUps >= maxConsecutiveFollowUps && len(missing) > 0 {
			c.logger.Info("follow-up cap reached, advancing",
				"question_id", q.ID, "missing", missing)
		}
		c.recordAndAdvance(coverage)
		return Result{CoveragePercent: coverage, Missing: missing}, nil
	}

	c.followUps++
	c.followUpFor = missing[0]
	c.followUpTxt = c.generateFollowUp(ctx, q, text, missing)
	c.logger.Info("follow-up scheduled",
		"question_id", q.ID, "target", c.followUpFor,
		"coverage_percent", coverage, "attempt", c.followUps)

	return Result{NeedsFollowUp: true, CoveragePercent: coverage, Missing: missing}, nil
}

// End marks the session completed and returns the final score: the rounded
// mean of the per-question coverage history, clamped to 60..95. Ending twice
// returns the same score.
func (c *Controller) End(ctx context.Context) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state == StateCompleted {
		return c.score
	}
	c.completeLocked(ctx)
	return c.score
}

// Answers returns a copy of the per-question transcript history.
func (c *Controller) Answers() map[string][]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string][]string, len(c.answers))
	for id, list := range c.answers {
		out[id] = append([]string(nil), list...)
	}
	return out
}

// StartedAt returns the session creation time.
func (c *Controller) StartedAt() time.Time { return c.started }

// Coverages returns a copy of the final coverage per answered question id.
func (c *Controller) Coverages() map[string]float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]float64, len(c.coverageByID))
	for id, v := range c.coverageByID {
		out[id] = v
	}
	return out
}

// Notes returns the interviewer reflection notes accumulated so far.
func (c *Controller) Notes() string {
	if c.reflector == nil {
		return ""
	}
	return c.reflector.Notes()
}

// currentLocked fetches the question under the cursor, waiting briefly for
// its metadata when enrichment is still in flight. Callers hold c.mu.
func (c *Controller) currentLocked(ctx context.Context) (question.Question, bool) {
	q, ok := c.store.At(c.cursor)
	if !ok {
		return question.Question{}, false
	}
	if q.Enriched() {
		return q, true
	}

	deadline := time.Now().Add(enrichmentWait)
	for !q.Enriched() && time.Now().Before(deadline) && ctx.Err() == nil {
		st := c.store.Status()
		if !st.InProgress {
			break
		}
		time.Sleep(enrichmentPoll)
		q, ok = c.store.At(c.cursor)
		if !ok {
			return question.Question{}, false
		}
	}
	return q, true
}

// missingFor returns the per-session missing view for q, seeding it from the
// full subtopic list on the first evaluation of the question.
func (c *Controller) missingFor(q question.Question) []string {
	if c.viewFor != q.ID {
		c.viewFor = q.ID
		c.missingView = append([]string(nil), q.Subtopics...)
	}
	return c.missingView
}

// recordAndAdvance appends the question's final coverage and moves the
// cursor, completing the session on the last question. Callers hold c.mu.
func (c *Controller) recordAndAdvance(coverage float64) {
	if q, ok := c.store.At(c.cursor); ok {
		c.coverageByID[q.ID] = coverage
	}
	c.coverages = append(c.coverages, coverage)
	c.followUps = 0
	c.followUpTxt = ""
	c.followUpFor = ""
	c.missingView = nil
	c.viewFor = ""

	if c.cursor >= c.store.Len()-1 {
		c.completeLocked(context.Background())
		return
	}
	c.cursor++
}

// completeLocked transitions to StateCompleted and fixes the score.
func (c *Controller) completeLocked(ctx context.Context) {
	c.state = StateCompleted
	c.score = c.finalScore()
	if c.metrics != nil {
		c.metrics.InterviewsCompleted.Add(ctx, 1)
	}
	c.logger.Info("interview completed",
		"score", c.score, "questions_answered", len(c.coverages))
}

// finalScore is the rounded mean coverage clamped to the score band. An
// interview with no evaluated answers scores the floor.
func (c *Controller) finalScore() int {
	if len(c.coverages) == 0 {
		return scoreFloor
	}
	var sum float64
	for _, v := range c.coverages {
		sum += v
	}
	score := int(math.Round(sum / float64(len(c.coverages))))
	if score < scoreFloor {
		return scoreFloor
	}
	if score > scoreCeil {
		return scoreCeil
	}
	return score
}

// generateFollowUp asks the gateway for a probe on the first missing
// subtopic, falling back deterministically. Never fails.
func (c *Controller) generateFollowUp(ctx context.Context, q question.Question, transcript string, missing []string) string {
	notes := ""
	if c.reflector != nil {
		notes = c.reflector.Notes()
	}
	text := c.gw.FollowUp(ctx, q.Prompt, transcript, notes, missing)
	if c.metrics != nil {
		source := "generated"
		if text == gateway.FallbackFollowUp(missing[0]) {
			source = "fallback"
		}
		c.metrics.RecordFollowUp(ctx, source)
	}
	if c.reflector != nil {
		c.reflector.Observe(ctx, "intervistatore", text)
	}
	return text
}

// topicsFor narrows the question's topic objects to the still-missing view,
// so that earlier-covered subtopics are not re-tested.
func topicsFor(q question.Question, missing []string) []detect.Topic {
	all := q.Topics()
	if len(missing) == len(all) {
		return all
	}
	want := make(map[string]struct{}, len(missing))
	for _, name := range missing {
		want[name] = struct{}{}
	}
	out := make([]detect.Topic, 0, len(missing))
	for _, t := range all {
		if _, ok := want[t.Name]; ok {
			out = append(out, t)
		}
	}
	return out
}

// subtract returns the ordered elements of names not present in covered.
func subtract(names []string, covered map[string]struct{}) []string {
	out := make([]string, 0, len(names))
	for _, n := range names {
		if _, ok := covered[n]; !ok {
			out = append(out, n)
		}
	}
	return out
}

// detectorName labels detection metrics by implementation.
func detectorName(d detect.Detector) string {
	switch d.(type) {
	case *detect.Arbiter:
		return "arbiter"
	default:
		return "cascade"
	}
}
