package framework

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/saucelabs/parallel-browser-tests/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type recordingTestLogger struct {
	started  []string
	finished map[string]bool
	skipped  map[string]string
	errors   map[string][]string
}

func newRecordingTestLogger() *recordingTestLogger {
	return &recordingTestLogger{
		finished: make(map[string]bool),
		skipped:  make(map[string]string),
		errors:   make(map[string][]string),
	}
}

func (r *recordingTestLogger) TestStarted(id TestID) { r.started = append(r.started, id.String()) }

func (r *recordingTestLogger) TestError(id TestID, err error) {
	r.errors[id.String()] = append(r.errors[id.String()], err.Error())
}

func (r *recordingTestLogger) TestFinished(id TestID, failed bool, _ logging.CapturedOutput) {
	r.finished[id.String()] = failed
}

func (r *recordingTestLogger) TestSkipped(id TestID, reason string) { r.skipped[id.String()] = reason }

func failureIDs(results Results) []string {
	var ret []string
	for _, f := range results.Failures {
		ret = append(ret, f.TestID.String())
	}
	sort.Strings(ret)
	return ret
}

func TestPassingAndFailingSubtests(t *testing.T) {
	logger := newRecordingTestLogger()
	results := Run(nil, logger, func(c *Context) {
		c.Run("a", func(c *Context) {})
		c.Run("b", func(c *Context) {
			require.Fail(c, "nope")
		})
		c.Run("c", func(c *Context) {
			assert.Equal(c, 1, 2)
			c.Debug("still running")
		})
	})

	assert.False(t, results.OK())
	assert.Equal(t, []string{"b", "c"}, failureIDs(results))
	assert.Len(t, results.Tests, 3)
	assert.Equal(t, []string{"a", "b", "c"}, logger.started)
	assert.Equal(t, map[string]bool{"a": false, "b": true, "c": true}, logger.finished)
	require.Len(t, logger.errors["b"], 1)
	assert.Contains(t, logger.errors["b"][0], "nope")
	assert.NotContains(t, logger.errors["b"][0], "Error Trace")
}

func TestNestedTestIDs(t *testing.T) {
	var ids []string
	Run(nil, nil, func(c *Context) {
		c.Run("outer", func(c *Context) {
			c.Run("inner", func(c *Context) {
				ids = append(ids, c.ID().String())
			})
		})
	})
	assert.Equal(t, []string{"outer/inner"}, ids)
}

func TestSkip(t *testing.T) {
	logger := newRecordingTestLogger()
	results := Run(nil, logger, func(c *Context) {
		c.Run("skipped", func(c *Context) {
			c.SkipWithReason("not today")
			c.Errorf("should not get here")
		})
	})
	assert.True(t, results.OK())
	assert.Equal(t, "not today", logger.skipped["skipped"])
	require.Len(t, results.Tests, 1)
	assert.True(t, results.Tests[0].Skipped)
}

func TestFailureInDeferredFunctionAfterSkipIsRecorded(t *testing.T) {
	logger := newRecordingTestLogger()
	var skippedInCleanup bool
	results := Run(nil, logger, func(c *Context) {
		c.Run("skipped", func(c *Context) {
			c.Defer(func() {
				skippedInCleanup = c.Skipped()
				require.Fail(c, "cleanup failed")
			})
			c.SkipWithReason("not today")
		})
	})
	assert.True(t, skippedInCleanup)
	assert.Equal(t, []string{"skipped"}, failureIDs(results))
	assert.Equal(t, map[string]bool{"skipped": true}, logger.finished)
	assert.Empty(t, logger.skipped)
	require.Len(t, results.Tests, 1)
	assert.False(t, results.Tests[0].Skipped)
}

func TestFilterExcludesTests(t *testing.T) {
	logger := newRecordingTestLogger()
	ran := false
	Run(func(id TestID) bool { return id.String() != "excluded" }, logger, func(c *Context) {
		c.Run("excluded", func(c *Context) { ran = true })
	})
	assert.False(t, ran)
	assert.Equal(t, "excluded by filter parameters", logger.skipped["excluded"])
}

func TestUnexpectedPanicIsAFailure(t *testing.T) {
	logger := newRecordingTestLogger()
	results := Run(nil, logger, func(c *Context) {
		c.Run("panics", func(c *Context) { panic("boom") })
		c.Run("after", func(c *Context) {})
	})
	assert.Equal(t, []string{"panics"}, failureIDs(results))
	require.Len(t, logger.errors["panics"], 1)
	assert.Contains(t, logger.errors["panics"][0], "unexpected panic in test: boom")
	assert.False(t, logger.finished["after"])
}

func TestDeferredFunctionsRunInReverseOrder(t *testing.T) {
	var order []string
	Run(nil, nil, func(c *Context) {
		c.Run("test", func(c *Context) {
			c.Defer(func() { order = append(order, "first") })
			c.Defer(func() { order = append(order, "second") })
		})
	})
	assert.Equal(t, []string{"second", "first"}, order)
}

func TestDeferredFunctionsSeeFinalOutcome(t *testing.T) {
	outcomes := make(map[string]bool)
	Run(nil, nil, func(c *Context) {
		for _, name := range []string{"pass", "fail", "fail-now", "panic"} {
			name := name
			c.Run(name, func(c *Context) {
				c.Defer(func() { outcomes[name] = c.Failed() })
				switch name {
				case "fail":
					c.Errorf("failed")
				case "fail-now":
					c.FailNow()
				case "panic":
					panic(errors.New("oops"))
				}
			})
		}
	})
	assert.Equal(t, map[string]bool{"pass": false, "fail": true, "fail-now": true, "panic": true}, outcomes)
}

func TestFailureInDeferredFunctionIsRecorded(t *testing.T) {
	secondRan := false
	results := Run(nil, nil, func(c *Context) {
		c.Run("test", func(c *Context) {
			c.Defer(func() { secondRan = true })
			c.Defer(func() { require.Fail(c, "cleanup failed") })
		})
	})
	assert.True(t, secondRan)
	assert.Equal(t, []string{"test"}, failureIDs(results))
}

func TestRunParallelRunsEachEntryOnce(t *testing.T) {
	names := []string{"a", "b", "c", "d", "e"}
	var lock sync.Mutex
	seen := make(map[int]string)
	results := Run(nil, nil, func(c *Context) {
		c.RunParallel(names, 2, func(c *Context, i int) {
			lock.Lock()
			seen[i] = c.ID().String()
			lock.Unlock()
		})
	})
	assert.True(t, results.OK())
	assert.Len(t, results.Tests, len(names))
	for i, name := range names {
		assert.Equal(t, name, seen[i])
	}
}

func TestRunParallelRespectsLimit(t *testing.T) {
	const limit = 3
	var current, highest int32
	names := make([]string, 12)
	for i := range names {
		names[i] = fmt.Sprintf("instance %d", i)
	}
	Run(nil, nil, func(c *Context) {
		c.RunParallel(names, limit, func(c *Context, i int) {
			n := atomic.AddInt32(&current, 1)
			for {
				h := atomic.LoadInt32(&highest)
				if n <= h || atomic.CompareAndSwapInt32(&highest, h, n) {
					break
				}
			}
			time.Sleep(time.Millisecond * 20)
			atomic.AddInt32(&current, -1)
		})
	})
	assert.LessOrEqual(t, atomic.LoadInt32(&highest), int32(limit))
	assert.Greater(t, atomic.LoadInt32(&highest), int32(1))
}

func TestRunParallelIsolatesFailures(t *testing.T) {
	names := []string{"ok-1", "fails", "panics", "ok-2"}
	results := Run(nil, nil, func(c *Context) {
		c.RunParallel(names, 0, func(c *Context, i int) {
			c.Run("body", func(c *Context) {
				switch names[i] {
				case "fails":
					require.Fail(c, "failed")
				case "panics":
					panic("boom")
				}
			})
		})
	})
	assert.Equal(t, []string{"fails/body", "panics/body"}, failureIDs(results))
}
