// Package openai adapts the OpenAI chat completions API to the unified
// llm.Provider interface. It embeds openaicompat.Provider and adds the
// OpenAI-Organization header when an organization is configured.
package openai
