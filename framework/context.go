package framework

import (
	"errors"
	"fmt"
	"runtime/debug"
	"sync"

	"github.com/saucelabs/parallel-browser-tests/logging"

	"golang.org/x/sync/errgroup"
)

type environment struct {
	results    Results
	testLogger TestLogger
	filter     Filter
	lock       sync.Mutex
}

// Context is the framework's equivalent of *testing.T. A Context is only used by the
// goroutine that runs its test; subtests started with RunParallel each get their own.
type Context struct {
	env         *environment
	id          TestID
	debugLogger logging.CapturingLogger
	failed      bool
	skipped     bool
	skipReason  string
	errors      []error
	deferred    []func()
}

func Run(
	filter func(TestID) bool,
	testLogger TestLogger,
	action func(*Context),
) Results {
	if testLogger == nil {
		testLogger = nullTestLogger{}
	}
	env := &environment{
		filter:     filter,
		testLogger: testLogger,
	}
	c := &Context{env: env}
	c.run(action)
	return env.results
}

func (c *Context) run(action func(*Context)) {
	defer func() {
		if r := recover(); r != nil {
			c.recovered(r)
		}
		c.runDeferred()
		if len(c.id.Path) > 0 {
			c.env.addResult(TestResult{TestID: c.id, Errors: c.errors, Skipped: c.skipped && !c.failed}, c.failed)
		}
	}()

	action(c)
}

// skipSignal is the panic value used by Skip, so that a FailNow after a skip still counts.
type skipSignal struct{}

func (c *Context) recovered(r interface{}) {
	if _, ok := r.(skipSignal); ok {
		return
	}
	c.failed = true
	var addError error
	if _, ok := r.(*Context); ok {
		if len(c.errors) == 0 {
			addError = errors.New("test failed with no failure message")
		}
	} else {
		addError = fmt.Errorf("unexpected panic in test: %+v\n%s", r, string(debug.Stack()))
	}
	if addError != nil {
		c.errors = append(c.errors, addError)
		c.env.testError(c.id, addError)
	}
}

// Deferred functions run in reverse order of registration. A failure inside one of them
// is recorded against the test but does not stop the others.
func (c *Context) runDeferred() {
	for len(c.deferred) > 0 {
		last := len(c.deferred) - 1
		f := c.deferred[last]
		c.deferred = c.deferred[:last]
		func() {
			defer func() {
				if r := recover(); r != nil {
					c.recovered(r)
				}
			}()
			f()
		}()
	}
}

func (c *Context) ID() TestID {
	return c.id
}

func (c *Context) Run(name string, action func(*Context)) {
	id := TestID{Path: append(append([]string(nil), c.id.Path...), name)}

	c.env.testStarted(id)
	if c.env.filter != nil && !c.env.filter(id) {
		c.env.testSkipped(id, "excluded by filter parameters")
		return
	}
	c1 := &Context{
		id:  id,
		env: c.env,
	}
	c1.run(action)
	if c1.skipped && !c1.failed {
		c.env.testSkipped(id, c1.skipReason)
	} else {
		c.env.testFinished(id, c1.failed, c1.debugLogger.Output())
	}
}

// RunParallel runs one subtest per name, with at most limit of them executing at once. If
// limit is zero or negative, all of them may run at once. The action receives the index of
// the name it was started for. RunParallel returns when every subtest has finished.
//
// Subtests are independent: a failure or panic in one of them has no effect on the others.
func (c *Context) RunParallel(names []string, limit int, action func(*Context, int)) {
	var g errgroup.Group
	if limit > 0 {
		g.SetLimit(limit)
	}
	for i, name := range names {
		i, name := i, name
		g.Go(func() error {
			c.Run(name, func(c1 *Context) { action(c1, i) })
			return nil
		})
	}
	_ = g.Wait()
}

// Defer schedules a function to run when the current test finishes, whether it passed,
// failed, or was skipped. This is the equivalent of testing.T.Cleanup.
func (c *Context) Defer(f func()) {
	c.deferred = append(c.deferred, f)
}

// Failed returns true if the test has failed so far. When called from a deferred function,
// it reflects the final outcome of the test body.
func (c *Context) Failed() bool {
	return c.failed
}

func (c *Context) Errorf(format string, args ...interface{}) {
	c.failed = true
	err := fmt.Errorf(format, args...)
	c.errors = append(c.errors, err)
	c.env.testError(c.id, reformatError(err))
}

func (c *Context) FailNow() {
	panic(c)
}

func (c *Context) Skip() {
	c.skipped = true
	panic(skipSignal{})
}

// Skipped returns true if the test was skipped. A skipped test that also failed, for
// instance in a deferred function, is reported as a failure.
func (c *Context) Skipped() bool {
	return c.skipped
}

func (c *Context) SkipWithReason(reason string) {
	c.skipReason = reason
	c.Skip()
}

func (c *Context) Debug(message string, args ...interface{}) {
	c.debugLogger.Printf(message, args...)
}

func (c *Context) DebugLogger() logging.Logger {
	return &c.debugLogger
}

func (e *environment) addResult(result TestResult, failed bool) {
	e.lock.Lock()
	e.results.Tests = append(e.results.Tests, result)
	if failed {
		e.results.Failures = append(e.results.Failures, result)
	}
	e.lock.Unlock()
}

func (e *environment) testStarted(id TestID) {
	e.lock.Lock()
	e.testLogger.TestStarted(id)
	e.lock.Unlock()
}

func (e *environment) testError(id TestID, err error) {
	e.lock.Lock()
	e.testLogger.TestError(id, err)
	e.lock.Unlock()
}

func (e *environment) testFinished(id TestID, failed bool, debugOutput logging.CapturedOutput) {
	e.lock.Lock()
	e.testLogger.TestFinished(id, failed, debugOutput)
	e.lock.Unlock()
}

func (e *environment) testSkipped(id TestID, reason string) {
	e.lock.Lock()
	e.testLogger.TestSkipped(id, reason)
	e.lock.Unlock()
}
