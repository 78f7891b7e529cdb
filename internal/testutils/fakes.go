package testutils

import (
	"context"
	"errors"
	"sync"

	"github.com/botasky11/totml/pkg/domain"
	"github.com/botasky11/totml/pkg/ports"
)

// ErrScriptExhausted is returned by FakeBackend when no scripted reply is left.
var ErrScriptExhausted = errors.New("fake backend: no scripted response left")

// Reply is one scripted backend answer.
type Reply struct {
	Text   string
	Object map[string]any
	Err    error
}

// FakeBackend answers free-text and structured queries from two scripts and
// records every request it receives.
type FakeBackend struct {
	mu       sync.Mutex
	text     []Reply
	reviews  []Reply
	Requests []ports.QueryRequest
}

// NewFakeBackend creates an empty fake.
func NewFakeBackend() *FakeBackend {
	return &FakeBackend{}
}

// Completion queues a plan+code completion.
func (f *FakeBackend) Completion(text string) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = append(f.text, Reply{Text: text})
	return f
}

// Review queues a structured review; a nil object simulates a malformed answer.
func (f *FakeBackend) Review(obj map[string]any) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reviews = append(f.reviews, Reply{Object: obj})
	return f
}

// Fail queues a transport error for the next free-text query.
func (f *FakeBackend) Fail(err error) *FakeBackend {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text = append(f.text, Reply{Err: err})
	return f
}

// Query implements ports.Backend.
func (f *FakeBackend) Query(ctx context.Context, req ports.QueryRequest) (ports.QueryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Requests = append(f.Requests, req)

	queue := &f.text
	if req.Func != nil {
		queue = &f.reviews
	}
	if len(*queue) == 0 {
		return ports.QueryResponse{}, ErrScriptExhausted
	}
	r := (*queue)[0]
	*queue = (*queue)[1:]
	if r.Err != nil {
		return ports.QueryResponse{}, r.Err
	}
	return ports.QueryResponse{Text: r.Text, Object: r.Object}, nil
}

// StructuredRequests returns the recorded review requests.
func (f *FakeBackend) StructuredRequests() []ports.QueryRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []ports.QueryRequest
	for _, r := range f.Requests {
		if r.Func != nil {
			out = append(out, r)
		}
	}
	return out
}

// GoodReview builds a review reporting a working run.
func GoodReview(metric float64, lowerIsBetter bool) map[string]any {
	return map[string]any{
		"is_bug":          false,
		"summary":         "ran fine",
		"metric":          metric,
		"lower_is_better": lowerIsBetter,
	}
}

// BugReview builds a review reporting a bug.
func BugReview() map[string]any {
	return map[string]any{
		"is_bug":          true,
		"summary":         "crashed",
		"metric":          nil,
		"lower_is_better": true,
	}
}

// Completion formats a well-formed plan + python block.
func Completion(plan, code string) string {
	return plan + "\n\n```python\n" + code + "\n```\n"
}

// FakeInterpreter returns scripted execution results, falling back to a
// clean run once the script is exhausted.
type FakeInterpreter struct {
	mu      sync.Mutex
	results []domain.ExecutionResult
	Err     error
	Calls   []string
}

// Then queues an execution result.
func (f *FakeInterpreter) Then(res domain.ExecutionResult) *FakeInterpreter {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.results = append(f.results, res)
	return f
}

// Run implements ports.Interpreter.
func (f *FakeInterpreter) Run(ctx context.Context, code string, resetSession bool) (domain.ExecutionResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Calls = append(f.Calls, code)
	if f.Err != nil {
		return domain.ExecutionResult{}, f.Err
	}
	if len(f.results) == 0 {
		return domain.ExecutionResult{TermOut: "ok"}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

// Crash is an execution result with a raised exception.
func Crash(kind, msg string) domain.ExecutionResult {
	return domain.ExecutionResult{
		TermOut:   "Traceback (most recent call last):\n" + kind + ": " + msg,
		Exception: &domain.ExceptionInfo{Type: kind, Message: msg},
	}
}

// ScriptedRand is a deterministic Rand: Float64 and IntN pop from their
// queues (0 when empty) and Shuffle leaves the order untouched.
type ScriptedRand struct {
	Floats []float64
	Ints   []int
}

func (r *ScriptedRand) Float64() float64 {
	if len(r.Floats) == 0 {
		return 0
	}
	v := r.Floats[0]
	r.Floats = r.Floats[1:]
	return v
}

func (r *ScriptedRand) IntN(n int) int {
	if len(r.Ints) == 0 {
		return 0
	}
	v := r.Ints[0]
	r.Ints = r.Ints[1:]
	return v % n
}

func (r *ScriptedRand) Shuffle(n int, swap func(i, j int)) {}

// ReviewedNode builds a node that has been executed and reviewed.
func ReviewedNode(plan, code string, parent *domain.Node, buggy bool, metric domain.MetricValue) *domain.Node {
	n := domain.NewNode(plan, code, parent)
	_ = n.AbsorbExecResult(domain.ExecutionResult{TermOut: "out: " + plan})
	_ = n.AbsorbReview("analysis: "+plan, buggy, metric)
	return n
}
