package handles

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestHandles(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "handles suite")
}

var _ = Describe("parseLsofF", func() {
	It("parses a single holder record", func() {
		out := []byte("p1234\ncrpmq\nn/var/lib/rpm/Packages\n")
		holders := parseLsofF(out)
		Expect(holders).To(HaveLen(1))
		Expect(holders[0]).To(Equal(Holder{PID: 1234, Command: "rpmq", Name: "/var/lib/rpm/Packages"}))
	})

	It("parses multiple holders separated by a new p field", func() {
		out := []byte("p1\nca\nnx\np2\ncb\nny\n")
		holders := parseLsofF(out)
		Expect(holders).To(HaveLen(2))
		Expect(holders[0].PID).To(Equal(1))
		Expect(holders[1].PID).To(Equal(2))
	})

	It("returns nothing for empty output", func() {
		Expect(parseLsofF(nil)).To(BeEmpty())
	})

	It("ignores fields before the first p record", func() {
		out := []byte("cstray\np5\nnfile\n")
		holders := parseLsofF(out)
		Expect(holders).To(HaveLen(1))
		Expect(holders[0].PID).To(Equal(5))
	})
})

var _ = Describe("dirOf", func() {
	It("strips the final path segment", func() {
		Expect(dirOf("/var/lib/rpm/Packages")).To(Equal("/var/lib/rpm"))
	})

	It("returns the input unchanged for a bare name", func() {
		Expect(dirOf("Packages")).To(Equal("Packages"))
	})
})
