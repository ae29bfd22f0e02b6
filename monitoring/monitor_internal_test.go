package monitoring

import (
	"encoding/json"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sarchlab/gpubatch/batch"
	"github.com/sarchlab/gpubatch/gem"
	"github.com/sarchlab/gpubatch/submission"
)

var _ = Describe("Monitor", func() {
	var (
		m        *Monitor
		registry batch.Registry
		b        *batch.Batch
	)

	BeforeEach(func() {
		registry = batch.NewRegistry()

		b = batch.MakeBuilder().
			WithSink(submission.NewSimSink()).
			WithHandleSource(gem.NewSequentialHandleSource(1)).
			WithRegistry(registry).
			Build("MonitoredBatch")

		m = NewMonitor()
		m.RegisterRegistry(registry)
	})

	AfterEach(func() {
		b.Destroy()
	})

	It("should list registered batches", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/batches", nil)

		m.listBatches(w, r)

		var summaries []batchSummary
		err := json.Unmarshal(w.Body.Bytes(), &summaries)

		Expect(err).To(BeNil())
		Expect(summaries).To(HaveLen(1))
		Expect(summaries[0].Name).To(Equal("MonitoredBatch"))
		Expect(summaries[0].State).To(Equal("building"))
		Expect(summaries[0].NumObjects).To(Equal(1))
	})

	It("should 404 on unknown batch names", func() {
		w := httptest.NewRecorder()

		found := m.findBatchOr404(w, "NoSuchBatch")

		Expect(found).To(BeNil())
		Expect(w.Code).To(Equal(404))
	})

	It("should find batches by name", func() {
		w := httptest.NewRecorder()

		found := m.findBatchOr404(w, "MonitoredBatch")

		Expect(found).To(BeIdenticalTo(b))
	})

	It("should report process resources", func() {
		w := httptest.NewRecorder()
		r := httptest.NewRequest("GET", "/api/resource", nil)

		m.listResources(w, r)

		var rsp resourceRsp
		err := json.Unmarshal(w.Body.Bytes(), &rsp)

		Expect(err).To(BeNil())
		Expect(rsp.MemorySize).To(BeNumerically(">", 0))
	})
})
