package config

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("RegisterSecret/sanitize", func() {
	It("redacts a registered secret from subsequent messages", func() {
		RegisterSecret("topsecret-webhook-token")
		Expect(sanitize("posting to https://hooks.example/topsecret-webhook-token")).
			To(Equal("posting to https://hooks.example/[REDACTED]"))
	})

	It("leaves unrelated text untouched", func() {
		RegisterSecret("another-secret-value")
		Expect(sanitize("nothing sensitive here")).To(Equal("nothing sensitive here"))
	})

	It("ignores an empty secret", func() {
		before := sanitize("unchanged")
		RegisterSecret("")
		Expect(sanitize("unchanged")).To(Equal(before))
	})
})
