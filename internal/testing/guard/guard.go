package guard

import (
	"os"
	"sync"
)

var once sync.Once

func init() {
	once.Do(func() {
		if os.Getenv("SMARTFLOW_TEST_MODE") == "" {
			_ = os.Setenv("SMARTFLOW_TEST_MODE", "1")
		}
	})
}
