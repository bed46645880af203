package memory

import (
	"testing"

	"github.com/orbitel/journey/pkg/ports"
)

func TestStoreContract(t *testing.T) {
	ports.RunSnapshotStoreContract(t, NewStore())
}
