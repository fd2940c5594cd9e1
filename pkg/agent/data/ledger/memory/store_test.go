package memory

import (
	"testing"

	"github.com/easycoin-labs/agent-server/pkg/agent/data/ledger/tests"
)

func TestLedgerMemoryStore(t *testing.T) {
	testStore := New()
	teardown := func() {
		testStore.(*store).reset()
	}
	tests.RunTests(t, testStore, teardown)
}
