// Package guard flips the application into test mode when imported.
// Blank-import it from command tests so main() exits before touching
// Postgres or Redis.
package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("MOULDWORKS_TEST_MODE") == "" {
			_ = os.Setenv("MOULDWORKS_TEST_MODE", "1")
		}
	})
}
