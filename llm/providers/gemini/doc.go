// Package gemini adapts the Google Gemini generateContent API to the
// unified llm.Provider interface. Authentication uses the x-goog-api-key
// header, the assistant role is called "model", tool calls travel as
// functionCall/functionResponse parts, and streaming returns line-delimited
// JSON rather than SSE. Gemini does not assign tool call IDs, so the client
// synthesizes stable ones from the function name and part position.
package gemini
