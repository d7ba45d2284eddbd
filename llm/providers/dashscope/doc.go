// Package dashscope adapts Alibaba Cloud DashScope (Qwen models) to the
// unified llm.Provider interface via DashScope's OpenAI compatible mode.
// Large request bodies can optionally be gzip-compressed before upload.
package dashscope
