// package spotify implements the Spotify Web API client used by the ETL
// pipeline: OAuth2 token management, a rate-limited HTTP client with
// retry/backoff, and the bounded paginated extractor.
//
// Response types based on https://developer.spotify.com/documentation/web-api/reference/
package spotify
