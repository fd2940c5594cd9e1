package memory

import (
	"testing"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/pause/tests"
)

func TestPauseMemoryStore(t *testing.T) {
	testStore := New()
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunTests(t, testStore, teardown)
}
