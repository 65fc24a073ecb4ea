package relay_test

import (
	"context"
	"errors"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/papercomputeco/threadrelay/pkg/poll"
	"github.com/papercomputeco/threadrelay/pkg/threads"
	"github.com/papercomputeco/threadrelay/relay"
)

var _ = Describe("Relay", func() {
	var (
		ctx      context.Context
		provider *fakeProvider
		config   relay.Config
	)

	newRelay := func() *relay.Relay {
		client := threads.New(threads.Options{
			BaseURL: provider.URL(),
			APIKey:  config.APIKey,
			Headers: map[string]string{"OpenAI-Beta": "assistants=v2"},
		})
		return relay.New(config, client, zap.NewNop())
	}

	BeforeEach(func() {
		ctx = context.Background()
		provider = newFakeProvider()
		config = relay.Config{
			APIKey:      "sk-test",
			AssistantID: "asst_1",
			Poll:        poll.Policy{Attempts: relay.DefaultPollAttempts, Interval: time.Millisecond},
		}
	})

	AfterEach(func() {
		provider.Close()
	})

	Describe("BeginConversation", func() {
		It("returns the provider-issued thread id verbatim", func() {
			provider.threadID = "thread_Zx9"

			id, err := newRelay().BeginConversation(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(id).To(Equal("thread_Zx9"))
			Expect(provider.Calls()).To(Equal([]string{"POST /threads"}))
		})

		It("sends the bearer credential and extra headers", func() {
			_, err := newRelay().BeginConversation(ctx)
			Expect(err).NotTo(HaveOccurred())

			Expect(provider.headers).To(HaveLen(1))
			Expect(provider.headers[0].Get("Authorization")).To(Equal("Bearer sk-test"))
			Expect(provider.headers[0].Get("OpenAI-Beta")).To(Equal("assistants=v2"))
		})

		It("fails with a ConfigurationError before any network call when the key is missing", func() {
			config.APIKey = ""

			_, err := newRelay().BeginConversation(ctx)

			var cfgErr *relay.ConfigurationError
			Expect(errors.As(err, &cfgErr)).To(BeTrue())
			Expect(cfgErr.Missing).To(ConsistOf("OPENAI_API_KEY"))
			Expect(err).To(MatchError(relay.ErrNotConfigured))
			Expect(provider.Calls()).To(BeEmpty())
		})

		It("fails with a ConfigurationError when the assistant is missing", func() {
			config.AssistantID = ""

			_, err := newRelay().BeginConversation(ctx)
			Expect(err).To(MatchError(relay.ErrNotConfigured))
			Expect(provider.Calls()).To(BeEmpty())
		})

		It("surfaces the upstream body on failure", func() {
			provider.failures["POST /threads"] = http.StatusUnauthorized
			provider.failBody = `{"error":{"message":"Incorrect API key provided"}}`

			_, err := newRelay().BeginConversation(ctx)

			var upErr *threads.UpstreamError
			Expect(errors.As(err, &upErr)).To(BeTrue())
			Expect(upErr.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(upErr.Body).To(ContainSubstring("Incorrect API key provided"))
		})
	})

	Describe("Exchange", func() {
		It("returns the newest assistant reply for a completed run", func() {
			provider.runStatuses = []openai.RunStatus{openai.RunStatusInProgress, openai.RunStatusCompleted}
			provider.messages = []openai.Message{
				textMessage("assistant", 30, "Ciao! Come posso aiutarti?"),
				textMessage("user", 20, "Ciao"),
				textMessage("assistant", 10, "older reply"),
			}

			result, err := newRelay().Exchange(ctx, "t1", "Ciao")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(&relay.Result{Reply: "Ciao! Come posso aiutarti?", ThreadID: "t1"}))

			Expect(provider.appended).To(HaveLen(1))
			Expect(provider.appended[0].Role).To(Equal("user"))
			Expect(provider.appended[0].Content).To(Equal("Ciao"))
			Expect(provider.runReqs).To(HaveLen(1))
			Expect(provider.runReqs[0].AssistantID).To(Equal("asst_1"))
			Expect(provider.polls).To(Equal(2))
			Expect(provider.query).To(Equal("limit=10"))
			Expect(provider.Calls()).To(Equal([]string{
				"POST /threads/messages",
				"POST /threads/runs",
				"GET /threads/runs/run",
				"GET /threads/runs/run",
				"GET /threads/messages",
			}))
		})

		It("skips polling when the run is already completed", func() {
			provider.initial = openai.RunStatusCompleted
			provider.messages = []openai.Message{textMessage("assistant", 1, "done")}

			result, err := newRelay().Exchange(ctx, "t1", "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Reply).To(Equal("done"))
			Expect(provider.polls).To(BeZero())
		})

		It("returns the fallback reply after 60 polls of a pending run", func() {
			provider.runStatuses = []openai.RunStatus{openai.RunStatusQueued}

			result, err := newRelay().Exchange(ctx, "t1", "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Reply).To(Equal(relay.DefaultFallbackReply))
			Expect(result.ThreadID).To(Equal("t1"))
			Expect(provider.polls).To(Equal(60))
			Expect(provider.Calls()).NotTo(ContainElement("GET /threads/messages"))
		})

		It("treats a failed run like a timeout", func() {
			provider.runStatuses = []openai.RunStatus{openai.RunStatusInProgress, openai.RunStatusFailed}

			result, err := newRelay().Exchange(ctx, "t1", "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(result).To(Equal(&relay.Result{Reply: relay.DefaultFallbackReply, ThreadID: "t1"}))
			Expect(provider.polls).To(Equal(2))
		})

		It("uses the configured fallback and empty replies", func() {
			config.FallbackReply = "Mi sto prendendo qualche secondo in più per elaborare, riprova tra poco."
			config.EmptyReply = "Nessuna risposta."
			config.Poll.Attempts = 3
			provider.runStatuses = []openai.RunStatus{openai.RunStatusInProgress}

			result, err := newRelay().Exchange(ctx, "t1", "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Reply).To(Equal(config.FallbackReply))
			Expect(provider.polls).To(Equal(3))
		})

		It("returns the empty sentinel when the reply has no text block", func() {
			provider.initial = openai.RunStatusCompleted
			provider.messages = []openai.Message{{
				Role:      "assistant",
				CreatedAt: 5,
				Content: []openai.MessageContent{
					{Type: "image_file", ImageFile: &openai.ImageFile{FileID: "file_1"}},
					{Type: "text", Text: &openai.MessageText{Value: ""}},
				},
			}}

			result, err := newRelay().Exchange(ctx, "t1", "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Reply).To(Equal("no response"))
			Expect(result.ThreadID).To(Equal("t1"))
		})

		It("returns the empty sentinel when there is no assistant message", func() {
			provider.initial = openai.RunStatusCompleted
			provider.messages = []openai.Message{textMessage("user", 1, "hi")}

			result, err := newRelay().Exchange(ctx, "t1", "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Reply).To(Equal(relay.DefaultEmptyReply))
		})

		It("requests descending order and takes the first assistant message", func() {
			config.MessageOrder = threads.OrderDesc
			provider.initial = openai.RunStatusCompleted
			provider.messages = []openai.Message{
				textMessage("assistant", 1, "first in page"),
				textMessage("assistant", 9, "later timestamp"),
			}

			result, err := newRelay().Exchange(ctx, "t1", "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Reply).To(Equal("first in page"))
			Expect(provider.query).To(Equal("limit=10&order=desc"))
		})

		It("requests ascending order and takes the newest assistant message", func() {
			config.MessageOrder = threads.OrderAsc
			provider.initial = openai.RunStatusCompleted
			provider.messages = []openai.Message{
				textMessage("assistant", 1, "old"),
				textMessage("user", 2, "hi"),
				textMessage("assistant", 3, "new"),
			}

			result, err := newRelay().Exchange(ctx, "t1", "hi")
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Reply).To(Equal("new"))
			Expect(provider.query).To(Equal("limit=10&order=asc"))
		})

		DescribeTable("aborts at the failing step with the upstream body",
			func(failing string, op string, expected []string) {
				provider.runStatuses = []openai.RunStatus{openai.RunStatusCompleted}
				provider.failures[failing] = http.StatusInternalServerError
				provider.failBody = "provider exploded"

				result, err := newRelay().Exchange(ctx, "t1", "hi")
				Expect(result).To(BeNil())

				var upErr *threads.UpstreamError
				Expect(errors.As(err, &upErr)).To(BeTrue())
				Expect(upErr.Op).To(Equal(op))
				Expect(upErr.Body).To(Equal("provider exploded"))
				Expect(provider.Calls()).To(Equal(expected))
			},
			Entry("add message", "POST /threads/messages", "add message", []string{
				"POST /threads/messages",
			}),
			Entry("start run", "POST /threads/runs", "start run", []string{
				"POST /threads/messages",
				"POST /threads/runs",
			}),
			Entry("check run", "GET /threads/runs/run", "check run", []string{
				"POST /threads/messages",
				"POST /threads/runs",
				"GET /threads/runs/run",
			}),
			Entry("read messages", "GET /threads/messages", "read messages", []string{
				"POST /threads/messages",
				"POST /threads/runs",
				"GET /threads/runs/run",
				"GET /threads/messages",
			}),
		)

		It("fails with a ConfigurationError before any network call", func() {
			config.AssistantID = ""

			_, err := newRelay().Exchange(ctx, "t1", "hi")
			Expect(err).To(MatchError(relay.ErrNotConfigured))
			Expect(provider.Calls()).To(BeEmpty())
		})

		It("rejects an empty message without calling the provider", func() {
			_, err := newRelay().Exchange(ctx, "t1", "   ")
			Expect(err).To(MatchError(relay.ErrInvalidExchange))
			Expect(provider.Calls()).To(BeEmpty())
		})

		It("rejects an empty thread id without calling the provider", func() {
			_, err := newRelay().Exchange(ctx, "", "hi")
			Expect(err).To(MatchError(relay.ErrInvalidExchange))
			Expect(provider.Calls()).To(BeEmpty())
		})
	})
})
