package supervisor

import (
	"context"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestSupervisor(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "supervisor suite")
}

var _ = Describe("boundedBuffer", func() {
	It("returns everything written when under capacity", func() {
		b := newBoundedBuffer(1024)
		n, err := b.Write([]byte("hello"))
		Expect(err).NotTo(HaveOccurred())
		Expect(n).To(Equal(5))
		Expect(b.Bytes()).To(Equal([]byte("hello")))
	})

	It("truncates and appends a marker once capacity is exceeded", func() {
		b := newBoundedBuffer(4)
		_, err := b.Write([]byte("hello world"))
		Expect(err).NotTo(HaveOccurred())
		out := b.Bytes()
		Expect(out).To(HavePrefix("hell"))
		Expect(string(out)).To(ContainSubstring("truncated"))
	})

	It("never returns a write error, even while discarding", func() {
		b := newBoundedBuffer(1)
		_, err := b.Write([]byte("overflow"))
		Expect(err).NotTo(HaveOccurred())
		_, err = b.Write([]byte("more overflow"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("defaults to the 64MiB cap when given a non-positive capacity", func() {
		b := newBoundedBuffer(0)
		Expect(b.capacity).To(Equal(defaultStreamCap))
	})
})

var _ = Describe("CommandResult.Success", func() {
	It("is true only for a clean zero exit", func() {
		Expect((&CommandResult{ExitCode: 0}).Success()).To(BeTrue())
	})

	It("is false when signaled", func() {
		Expect((&CommandResult{ExitCode: 0, Signaled: true}).Success()).To(BeFalse())
	})

	It("is false when we terminated it ourselves", func() {
		Expect((&CommandResult{ExitCode: 0, TerminatedByUs: true}).Success()).To(BeFalse())
	})

	It("is false for a non-zero exit", func() {
		Expect((&CommandResult{ExitCode: 1}).Success()).To(BeFalse())
	})
})

var _ = Describe("Supervisor.Run", func() {
	It("rejects an empty argv", func() {
		sup := New(0, 0)
		_, err := sup.Run(context.Background(), nil, Options{Timeout: time.Second})
		Expect(err).To(HaveOccurred())
	})

	It("rejects a non-positive timeout", func() {
		sup := New(0, 0)
		_, err := sup.Run(context.Background(), []string{"sh", "-c", "true"}, Options{})
		Expect(err).To(HaveOccurred())
	})

	It("captures stdout and reports a clean exit", func() {
		sup := New(0, 0)
		result, err := sup.Run(context.Background(), []string{"sh", "-c", "echo hello"}, Options{Timeout: 2 * time.Second})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.Success()).To(BeTrue())
		Expect(string(result.Stdout)).To(ContainSubstring("hello"))
		Expect(result.Elapsed).To(BeNumerically(">=", 0))
	})

	It("classifies a non-zero exit without a Go error", func() {
		sup := New(0, 0)
		result, err := sup.Run(context.Background(), []string{"sh", "-c", "exit 7"}, Options{Timeout: 2 * time.Second})
		Expect(err).NotTo(HaveOccurred())
		Expect(result.ExitCode).To(Equal(7))
		Expect(result.Success()).To(BeFalse())
	})

	It("terminates a hanging command at the timeout and marks it TerminatedByUs", func() {
		sup := New(0, 0)
		start := time.Now()
		result, err := sup.Run(context.Background(), []string{"sh", "-c", "sleep 5"}, Options{
			Timeout: 100 * time.Millisecond,
			Grace:   100 * time.Millisecond,
		})
		elapsed := time.Since(start)

		Expect(err).NotTo(HaveOccurred())
		Expect(result.TerminatedByUs).To(BeTrue())
		Expect(result.ExitCode).To(Equal(TimedOut))
		Expect(result.Success()).To(BeFalse())
		Expect(elapsed).To(BeNumerically("<", 4*time.Second), "the deadline must preempt the full sleep")
	})
})
