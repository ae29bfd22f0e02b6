package batch

import (
	"github.com/sarchlab/gpubatch/gem"
	"github.com/sarchlab/gpubatch/submission"
)

// relocTable accumulates the patch requests of one submission cycle.
// Entries are stored in emission order without de-duplication; repeated
// patches at the same offset are legal and produce multiple entries. The
// table is cleared after every submission, since relocations describe one
// submission's patch list rather than a durable log.
type relocTable struct {
	entries []submission.Reloc
}

func (t *relocTable) add(
	target gem.Handle,
	offset, delta uint64,
	readDomain, writeDomain gem.Domain,
) {
	t.entries = append(t.entries, submission.Reloc{
		Target:      target,
		Offset:      offset,
		Delta:       delta,
		ReadDomain:  readDomain,
		WriteDomain: writeDomain,
	})
}

func (t *relocTable) clear() {
	t.entries = t.entries[:0]
}

// snapshot returns a copy of the table. The copy is never nil, even when
// empty: the submission boundary distinguishes an absent relocation list
// from an empty one.
func (t *relocTable) snapshot() []submission.Reloc {
	entries := make([]submission.Reloc, len(t.entries))
	copy(entries, t.entries)

	return entries
}

func (t *relocTable) numEntries() int {
	return len(t.entries)
}
