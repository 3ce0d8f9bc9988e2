package logintests

import (
	"github.com/saucelabs/parallel-browser-tests/framework"
)

// RunTestSuite runs every login test on every enabled platform. Platforms are tested in
// parallel, up to config.Parallelism at a time; the tests for one platform run one after
// another.
func RunTestSuite(
	config SuiteConfig,
	filter framework.Filter,
	testLogger framework.TestLogger,
) framework.Results {
	config = config.withDefaults()
	enabled := config.Platforms.Enabled()

	return framework.Run(filter, testLogger, func(c *framework.Context) {
		c.RunParallel(enabled.Names(), config.Parallelism, func(c *framework.Context, i int) {
			t := newT(c, &config, enabled[i])

			t.Run("valid login", DoValidLoginTest)
			t.Run("bad password", DoBadPasswordTest)
		})
	})
}
