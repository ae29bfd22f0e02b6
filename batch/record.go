package batch

import "github.com/sarchlab/gpubatch/submission"

// A SubmissionRecorder persists submission outcomes for offline
// inspection. The recording package provides a SQLite-backed
// implementation. One recorder may be shared by multiple batches.
type SubmissionRecorder interface {
	CreateTable(tableName string, sampleEntry any)
	InsertData(tableName string, entry any)
	ListTables() []string
}

// SubmissionRow is the per-submission record.
type SubmissionRow struct {
	Batch          string
	Sequence       int
	Mode           string
	NumObjects     int
	StreamBytes    int
	NumRelocations int
}

// ObjectRow is the per-object record of one submission.
type ObjectRow struct {
	Batch    string
	Sequence int
	Handle   uint32
	Address  uint64
	Size     uint64
	Write    bool
}

const (
	submissionTable = "submissions"
	objectTable     = "objects"
)

func (b *Batch) ensureTables() {
	for _, name := range b.recorder.ListTables() {
		if name == submissionTable {
			return
		}
	}

	b.recorder.CreateTable(submissionTable, SubmissionRow{})
	b.recorder.CreateTable(objectTable, ObjectRow{})
}

func (b *Batch) record(req *submission.Request) {
	if b.recorder == nil {
		return
	}

	b.ensureTables()

	b.recorder.InsertData(submissionTable, SubmissionRow{
		Batch:          b.name,
		Sequence:       b.numSubmitted,
		Mode:           b.Mode().String(),
		NumObjects:     len(req.Objects),
		StreamBytes:    len(req.Instructions),
		NumRelocations: len(req.Relocations),
	})

	// The cache was already reconciled, so the rows carry the addresses
	// the kernel actually used.
	for _, obj := range b.flattenObjects() {
		b.recorder.InsertData(objectTable, ObjectRow{
			Batch:    b.name,
			Sequence: b.numSubmitted,
			Handle:   uint32(obj.Handle),
			Address:  obj.Address,
			Size:     obj.Size,
			Write:    obj.Write,
		})
	}
}
