package session

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"

	"github.com/agentscope-ai/agentscope-go/llm"
)

// TokenCounter counts tokens in message history, used for token-budget
// windowing.
type TokenCounter interface {
	CountText(text string) (int, error)
	CountMessages(messages []llm.Message) (int, error)
}

// perMessageOverhead approximates the chat framing tokens each message adds
// on top of its content (role, separators).
const perMessageOverhead = 4

var modelEncodings = map[string]string{
	"gpt-4o":        "o200k_base",
	"gpt-4o-mini":   "o200k_base",
	"gpt-4-turbo":   "cl100k_base",
	"gpt-4":         "cl100k_base",
	"gpt-3.5-turbo": "cl100k_base",
}

// TiktokenCounter counts tokens with the tiktoken encoding of a model.
// Non-OpenAI models fall back to cl100k_base, which is close enough for
// history truncation decisions.
type TiktokenCounter struct {
	encoding string
	enc      *tiktoken.Tiktoken
	once     sync.Once
	initErr  error
}

// NewTiktokenCounter creates a counter for the given model name.
func NewTiktokenCounter(model string) *TiktokenCounter {
	encoding := "cl100k_base"
	if enc, ok := modelEncodings[model]; ok {
		encoding = enc
	} else {
		for prefix, enc := range modelEncodings {
			if strings.HasPrefix(model, prefix) {
				encoding = enc
				break
			}
		}
	}
	return &TiktokenCounter{encoding: encoding}
}

// init is lazy: the first count may download encoding data.
func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

func (t *TiktokenCounter) CountText(text string) (int, error) {
	if err := t.init(); err != nil {
		return 0, err
	}
	return len(t.enc.Encode(text, nil, nil)), nil
}

func (t *TiktokenCounter) CountMessages(messages []llm.Message) (int, error) {
	total := 0
	for _, msg := range messages {
		n, err := t.CountText(msg.Content)
		if err != nil {
			return 0, err
		}
		total += n + perMessageOverhead
		for _, call := range msg.ToolCalls {
			n, err := t.CountText(call.Name + string(call.Arguments))
			if err != nil {
				return 0, err
			}
			total += n
		}
	}
	return total, nil
}
