package e2e_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/conduit-ai/conduit/citest/testutil"
)

func postJSON(url string, body any) (int, map[string]any) {
	data, err := json.Marshal(body)
	Expect(err).NotTo(HaveOccurred())

	resp, err := http.Post(url, "application/json", bytes.NewReader(data))
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())

	var decoded map[string]any
	if len(raw) > 0 {
		json.Unmarshal(raw, &decoded)
	}
	return resp.StatusCode, decoded
}

func getJSON(url string) (int, map[string]any) {
	resp, err := http.Get(url)
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()

	var decoded map[string]any
	json.NewDecoder(resp.Body).Decode(&decoded)
	return resp.StatusCode, decoded
}

var _ = Describe("Completion flow", func() {
	var ts *testutil.TestServer

	AfterEach(func() {
		if ts != nil {
			ts.Stop()
			ts = nil
		}
	})

	start := func(mock *testutil.MockProvider) {
		var err error
		ts, err = testutil.StartTestServer(mock)
		Expect(err).NotTo(HaveOccurred())
	}

	It("streams a completion and persists the final message", func() {
		start(testutil.NewMockProvider(testutil.TextScript("hello ", "world")))

		code, resp := postJSON(ts.BaseURL+"/api/chats/chat-e2e/completions", map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "hi"}},
		})
		Expect(code).To(Equal(http.StatusAccepted))
		messageID, _ := resp["message_id"].(string)
		Expect(messageID).NotTo(BeEmpty())

		Eventually(func() bool {
			code, doc := getJSON(ts.BaseURL + "/api/messages/" + messageID)
			if code != http.StatusOK {
				return false
			}
			done, _ := doc["done"].(bool)
			return done
		}, 5*time.Second, 50*time.Millisecond).Should(BeTrue())

		_, doc := getJSON(ts.BaseURL + "/api/messages/" + messageID)
		Expect(doc["content"]).To(ContainSubstring("hello world"))
		Expect(doc["role"]).To(Equal("assistant"))

		_, chat := getJSON(ts.BaseURL + "/api/chats/chat-e2e/")
		Expect(chat["active_message_id"]).To(Equal(messageID))
	})

	It("classifies tagged reasoning out of the visible answer", func() {
		start(testutil.NewMockProvider(testutil.TextScript("<think>weighing options</think>\n", "the answer")))

		code, resp := postJSON(ts.BaseURL+"/api/chats/chat-tagged/completions", map[string]any{
			"messages": []map[string]string{{"role": "user", "content": "think first"}},
		})
		Expect(code).To(Equal(http.StatusAccepted))
		messageID := resp["message_id"].(string)

		Eventually(func() any {
			_, doc := getJSON(ts.BaseURL + "/api/messages/" + messageID)
			return doc["done"]
		}, 5*time.Second, 50*time.Millisecond).Should(Equal(true))

		_, doc := getJSON(ts.BaseURL + "/api/messages/" + messageID)
		content, _ := doc["content"].(string)
		Expect(content).To(ContainSubstring("the answer"))
		Expect(content).NotTo(ContainSubstring("<think>"))
	})

	It("rejects a completion without messages", func() {
		start(testutil.NewMockProvider(testutil.TextScript("unused")))

		code, _ := postJSON(ts.BaseURL+"/api/chats/chat-bad/completions", map[string]any{
			"messages": []map[string]string{},
		})
		Expect(code).To(Equal(http.StatusBadRequest))
	})

	It("returns 404 when cancelling an idle chat", func() {
		start(testutil.NewMockProvider(testutil.TextScript("unused")))

		req, err := http.NewRequest(http.MethodDelete, ts.BaseURL+"/api/chats/idle/completions", nil)
		Expect(err).NotTo(HaveOccurred())
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
	})

	It("lists the configured models", func() {
		start(testutil.NewMockProvider(testutil.TextScript("unused")))

		code, doc := getJSON(ts.BaseURL + "/api/models")
		Expect(code).To(Equal(http.StatusOK))
		Expect(fmt.Sprintf("%v", doc["models"])).To(ContainSubstring("mock-model"))
	})

	It("registers and unregisters direct tools", func() {
		start(testutil.NewMockProvider(testutil.TextScript("unused")))

		code, _ := postJSON(ts.BaseURL+"/api/tools/register", map[string]any{
			"tools": []map[string]any{{
				"name":        "browser_click",
				"description": "Clicks an element in the client browser",
				"parameters":  map[string]any{"type": "object"},
			}},
		})
		Expect(code).To(Equal(http.StatusOK))

		binding, ok := ts.Tools.Lookup("browser_click")
		Expect(ok).To(BeTrue())
		Expect(binding.IsDirect()).To(BeTrue())

		code, _ = postJSON(ts.BaseURL+"/api/tools/unregister", map[string]any{
			"names": []string{"browser_click"},
		})
		Expect(code).To(Equal(http.StatusOK))

		_, ok = ts.Tools.Lookup("browser_click")
		Expect(ok).To(BeFalse())
	})
})
