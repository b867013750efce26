// Package openai provides an ai.Embedder implementation backed by
// OpenAI-compatible embedding APIs (OpenAI, Ollama, LocalAI, vLLM).
package openai
