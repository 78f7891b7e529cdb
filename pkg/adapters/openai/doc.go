/*
Package openai implements ports.Backend on top of OpenAI-compatible chat
completion APIs.

The provider is picked from the model name (gpt-*, o1/o3/..., codex-mini-latest
go to OpenAI; claude-* to Anthropic; gemini-* to Gemini; qwen* to DashScope;
openrouter/* to OpenRouter). Credentials come from <PROVIDER>_API_KEY and an
optional <PROVIDER>_BASE_URL. Structured requests are sent as a forced tool
call and the arguments are decoded leniently.
*/
package openai
