// Package models defines the library data exchanged with Spotify and served by the API.
//
// The package contains two categories of types:
//
// 1. Upstream DTOs decoded from the saved-tracks endpoint
//   - [SavedItemsPage] : One page of the user's saved tracks with the reported total
//   - [SavedItem] : A saved track with the time it was added
//   - [Track], [Album], [Artist], [Image] : Nested Spotify objects
//
// 2. Derived statistics computed from the saved collection
//   - [ArtistCount] : An artist name and how many saved tracks credit it, encoded as a JSON pair
//   - [AlbumSummary] : An album with its artwork, track total, and saved-track count
//
// Saved items are cached and returned to clients as decoded here, so every field
// the API exposes must be declared on these types.
package models
