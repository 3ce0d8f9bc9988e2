// Package framework contains the low-level implementation of test harness infrastructure
// that can be reused for different kinds of tests.
//
// The general model is:
//
// 1. There is a general notion of a test context which is similar to Go's *testing.T,
// allowing pieces of test logic to be associated with a test identifier and to accumulate
// success/failure results. Because it implements the same failure methods as *testing.T,
// the assert and require packages from testify can be used with it.
//
// 2. A test can expand into one independent subtest per parameter, and those subtests can
// run in parallel with a bounded number of workers. Each subtest has its own context, its
// own debug output, and its own deferred cleanup functions.
//
// 3. The harness can serve HTTP content that the system under test needs to reach.
//
// The domain-specific code that knows what is being tested is responsible for providing
// the parameters, and a domain-specific test API on top of the test context.
package framework
