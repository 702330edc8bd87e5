package message_test

import (
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/conduit-ai/conduit/internal/message"
)

func TestClassificationSuite(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Classification Suite")
}

var _ = Describe("Classifier", func() {
	var classifier *message.Classifier

	clock := func() time.Time { return time.Unix(1700000000, 0) }

	classify := func(text string) []message.Block {
		blocks := message.AppendText(nil, text)
		return classifier.Classify(blocks)
	}

	BeforeEach(func() {
		classifier = message.NewClassifier(nil).WithClock(clock)
	})

	Describe("streamed reasoning", func() {
		It("closes the block when the end tag arrives in a later delta", func() {
			blocks := message.AppendText(nil, "<think>o")
			blocks = classifier.Classify(blocks)
			blocks = message.AppendText(blocks, "k</think>\n")
			blocks = classifier.Classify(blocks)
			blocks = message.AppendText(blocks, "Hello")
			blocks = classifier.Classify(blocks)

			Expect(blocks).To(HaveLen(2))

			reasoning, ok := blocks[0].(*message.ReasoningBlock)
			Expect(ok).To(BeTrue())
			Expect(reasoning.Content).To(Equal("ok"))
			Expect(reasoning.EndedAt).NotTo(BeNil())
			Expect(*reasoning.Duration).To(BeNumerically(">=", 0))

			text, ok := blocks[1].(*message.TextBlock)
			Expect(ok).To(BeTrue())
			Expect(text.Content).To(Equal("Hello"))
		})

		It("renders a collapsed summary for the closed block", func() {
			blocks := classify("<think>ok</think>\nHello")

			out := message.Serialize(blocks)
			Expect(out).To(ContainSubstring("Thought for 0 seconds"))
			Expect(out).To(HaveSuffix("Hello"))
		})
	})

	Describe("determinism", func() {
		DescribeTable("classifying the same text twice yields identical lists",
			func(text string) {
				first := classify(text)
				second := classify(text)
				Expect(message.Serialize(second)).To(Equal(message.Serialize(first)))
				Expect(second).To(HaveLen(len(first)))
			},
			Entry("plain", "no tags here"),
			Entry("closed reasoning", "a<think>b</think>c"),
			Entry("unclosed code", `<code_interpreter lang="python">print(1)`),
			Entry("solution", "<solution>42</solution>"),
		)
	})
})
