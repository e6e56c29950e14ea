package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Config", func() {
	DescribeTable("Validate",
		func(cfg Config, valid bool) {
			err := cfg.Validate()
			if valid {
				Expect(err).NotTo(HaveOccurred())
			} else {
				Expect(err).To(MatchError(ContainSubstring("invalid scanner config")))
			}
		},
		Entry("gemini with key", Config{Backend: BackendGemini, GeminiKey: "k", Retries: 3}, true),
		Entry("gemini without key", Config{Backend: BackendGemini}, false),
		Entry("claude without key", Config{Backend: BackendClaude}, false),
		Entry("claude with key", Config{Backend: BackendClaude, ClaudeKey: "k"}, true),
		Entry("ollama needs no key", Config{Backend: BackendOllama}, true),
		Entry("ollama with bad url", Config{Backend: BackendOllama, OllamaURL: "not a url"}, false),
		Entry("unknown backend", Config{Backend: "openai"}, false),
		Entry("negative retries", Config{Backend: BackendOllama, Retries: -1}, false),
		Entry("too many retries", Config{Backend: BackendOllama, Retries: 11}, false),
	)

	Describe("New", func() {
		It("should wrap the backend with retries", func() {
			c, err := New(Config{Backend: BackendOllama, Retries: 2})
			Expect(err).NotTo(HaveOccurred())
			r, ok := c.(*Retrying)
			Expect(ok).To(BeTrue())
			Expect(r.attempts).To(Equal(3))
			Expect(r.next).To(BeAssignableToTypeOf(&Ollama{}))
		})

		It("should reject an invalid config", func() {
			_, err := New(Config{Backend: BackendClaude})
			Expect(err).To(HaveOccurred())
		})
	})
})
