package metrics

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "metrics suite")
}

var _ = Describe("statusCode", func() {
	It("maps every known status to a distinct code", func() {
		Expect(statusCode("OK")).To(Equal(0.0))
		Expect(statusCode("REMEDIATED")).To(Equal(1.0))
		Expect(statusCode("PARTIAL")).To(Equal(2.0))
		Expect(statusCode("FAILED")).To(Equal(3.0))
	})

	It("treats an unrecognized status as FAILED", func() {
		Expect(statusCode("SOMETHING_ELSE")).To(Equal(3.0))
	})
})

var _ = Describe("RecordRun", func() {
	It("sets the run gauges to the values passed in", func() {
		RecordRun("REMEDIATED", 2, 1, 12.5)
		Expect(testutil.ToFloat64(RunStatus)).To(Equal(1.0))
		Expect(testutil.ToFloat64(RunDurationSeconds)).To(Equal(12.5))
		Expect(testutil.ToFloat64(RebuildsUsed)).To(Equal(1.0))
	})
})

var _ = Describe("Push", func() {
	It("is a no-op when no gateway URL is configured", func() {
		Expect(Push("", "rpmdoctor", "run-1")).To(Succeed())
	})
})
