package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "config suite")
}

func validConfig() Config {
	c := Defaults()
	c.RPMBin = "sh"
	c.RecoverBin = "sh"
	c.VerifyBin = "sh"
	c.LsofBin = "sh"
	c.CleanupYumTransactions = false
	return c
}

var _ = Describe("Validate", func() {
	It("accepts a config whose binaries resolve on PATH", func() {
		c := validConfig()
		Expect(Validate(&c)).To(Succeed())
		Expect(c.RPMBin).To(HavePrefix("/"))
	})

	It("returns a MissingBinaryError for an unresolvable binary", func() {
		c := validConfig()
		c.RPMBin = "definitely-not-a-real-binary-xyz"
		err := Validate(&c)
		Expect(err).To(HaveOccurred())
		var missing *MissingBinaryError
		Expect(asMissingBinary(err, &missing)).To(BeTrue())
		Expect(missing.Flag).To(Equal("--rpm"))
	})

	It("rejects an invalid cron schedule", func() {
		c := validConfig()
		c.Schedule = "not a cron expression"
		Expect(Validate(&c)).To(HaveOccurred())
	})

	It("rejects a kill signal that isn't SIGTERM or SIGKILL", func() {
		c := validConfig()
		c.KillSignal = "SIGHUP"
		Expect(Validate(&c)).To(HaveOccurred())
	})

	It("only requires --yum when cleanup is enabled", func() {
		c := validConfig()
		c.YumBin = "definitely-not-a-real-binary-xyz"
		c.CleanupYumTransactions = false
		Expect(Validate(&c)).To(Succeed())

		c.CleanupYumTransactions = true
		Expect(Validate(&c)).To(HaveOccurred())
	})

	It("rejects a zero timeout", func() {
		c := validConfig()
		c.TimeoutQuery = 0
		Expect(Validate(&c)).To(HaveOccurred())
	})
})

var _ = Describe("LoadFile", func() {
	It("merges YAML values onto an existing Config", func() {
		dir := GinkgoT().TempDir()
		path := filepath.Join(dir, "rpmdoctor.yaml")
		Expect(os.WriteFile(path, []byte("db_path: /custom/rpm\nmax_passes: 7\n"), 0o644)).To(Succeed())

		c := Defaults()
		Expect(LoadFile(&c, path)).To(Succeed())
		Expect(c.DBPath).To(Equal("/custom/rpm"))
		Expect(c.MaxPasses).To(Equal(7))
		Expect(c.ConfigPath).To(Equal(path))
	})

	It("errors on a missing file", func() {
		c := Defaults()
		Expect(LoadFile(&c, "/no/such/file.yaml")).To(HaveOccurred())
	})
})

var _ = Describe("NextScheduledRun", func() {
	It("rejects a malformed schedule", func() {
		_, err := NextScheduledRun("nonsense")
		Expect(err).To(HaveOccurred())
	})

	It("returns a future time for a valid schedule", func() {
		before := time.Now()
		next, err := NextScheduledRun("0 3 * * *")
		Expect(err).NotTo(HaveOccurred())
		Expect(next.After(before)).To(BeTrue())
	})
})

func asMissingBinary(err error, target **MissingBinaryError) bool {
	m, ok := err.(*MissingBinaryError)
	if ok {
		*target = m
	}
	return ok
}
