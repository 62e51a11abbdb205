// Package providers implements the generation collaborators the router
// invokes: an OpenAI-compatible cloud client (Groq) and a local Ollama
// client. Providers are narrow: messages in, text plus reported token
// usage out. Failure here is recoverable: the router converts it into a
// degraded user-visible response.
package providers
