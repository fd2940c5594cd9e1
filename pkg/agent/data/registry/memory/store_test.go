package memory

import (
	"testing"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/registry/tests"
)

func TestRegistryMemoryStore(t *testing.T) {
	testStore := New()
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunTests(t, testStore, teardown)
}
