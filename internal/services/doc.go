// Package services defines the capability interfaces consumed by the
// resolution pipeline and implements the HTTP-backed ones.
//
// # Interfaces
//
// [Backend] is the authoritative track catalog. [QueryCleaner] is the
// optional metadata repair step. [LocalIndex] is the optional offline
// candidate index; its bleve implementation lives in the index package
// so interface consumers stay free of the dependency.
//
// # Catalog Implementation
//
// [CatalogService] adapts a JSON REST catalog API. Authentication is
// either a static X-Auth-Token header or an OAuth2 client-credentials
// client that refreshes bearer tokens automatically.
//
// # LLM Implementation
//
// [LLMService] posts a chat completion to any OpenAI-compatible
// endpoint and extracts the JSON metadata object from the reply.
//
// # Error Handling
//
// Services use typed errors from the shared package:
//   - [shared.ErrTransientNetwork] : connection failures and 5xx responses
//   - [shared.ErrRateLimited] : 429 responses
//   - [shared.ErrTimeout] : per-call deadline exceeded
//   - [shared.ErrAPIRequest] : non-retryable 4xx responses
//   - [shared.ErrTrackNotFound] : GetTrack miss
//   - [shared.ErrLLMUnavailable] : any cleaner failure, transport or parse
//
// [IsRetryable] reports whether one more attempt is worth it; the
// orchestrator retries qualifying failures exactly once.
package services
