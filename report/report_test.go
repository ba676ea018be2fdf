package report

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/prplanit/rpmdoctor/config"
	"github.com/prplanit/rpmdoctor/probe"
	"github.com/prplanit/rpmdoctor/remediate"
)

func TestReport(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "report suite")
}

var _ = Describe("exitCodeFor", func() {
	It("maps OK and REMEDIATED to 0", func() {
		Expect(exitCodeFor(remediate.OK)).To(Equal(ExitOK))
		Expect(exitCodeFor(remediate.Remediated)).To(Equal(ExitOK))
	})

	It("maps PARTIAL to 1", func() {
		Expect(exitCodeFor(remediate.Partial)).To(Equal(ExitPartial))
	})

	It("maps FAILED to 2", func() {
		Expect(exitCodeFor(remediate.Failed)).To(Equal(ExitFailed))
	})
})

var _ = Describe("ConfigErrorExit", func() {
	It("returns 65 for a missing binary", func() {
		err := &config.MissingBinaryError{Flag: "--rpm", Binary: "rpm"}
		Expect(ConfigErrorExit(err)).To(Equal(ExitMissingBinary))
	})

	It("returns 64 for any other config error", func() {
		Expect(ConfigErrorExit(plainErr{})).To(Equal(ExitConfigError))
	})
})

var _ = Describe("writeJSON", func() {
	It("writes a summary whose fields round-trip through JSON", func() {
		tr := &remediate.Transcript{
			RunID:  "test-run",
			Status: remediate.Remediated,
			Passes: []remediate.PassRecord{
				{
					SymptomObserved:   probe.Symptom{Kind: probe.TableCorrupt, Table: "Packages"},
					PostRepairSymptom: probe.Symptom{Kind: probe.Healthy},
					RepairsApplied: []remediate.RepairAction{
						{Action: remediate.RebuildDB, AttemptIndex: 1},
					},
				},
			},
		}

		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "summary.json")
		Expect(writeJSON(path, tr)).To(Succeed())

		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())

		var decoded jsonSummary
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded.RunID).To(Equal("test-run"))
		Expect(decoded.Status).To(Equal("REMEDIATED"))
		Expect(decoded.Passes).To(HaveLen(1))
		Expect(decoded.Passes[0].SymptomObserved).To(Equal("TABLE_CORRUPT"))
		Expect(decoded.Passes[0].RepairsApplied[0].Action).To(Equal("REBUILD_DB"))
	})
})

var _ = Describe("repairActionNames", func() {
	It("skips NOOP entries", func() {
		tr := &remediate.Transcript{
			Passes: []remediate.PassRecord{
				{RepairsApplied: []remediate.RepairAction{{Action: remediate.Noop}}},
				{RepairsApplied: []remediate.RepairAction{{Action: remediate.RecoverDB}}},
			},
		}
		Expect(repairActionNames(tr)).To(Equal([]string{"RECOVER_DB"}))
	})
})

type plainErr struct{}

func (plainErr) Error() string { return "plain error" }
