// Package fetch resolves image URLs to decoded images. FetchOne performs a
// single side-effect-free HTTP GET + decode; FetchAll resolves a batch
// concurrently, consulting the blob cache first, writing network results back
// into it, and returning one aggregate Result after every URL has settled.
//
// Failures are isolated per URL and reported as typed *FetchError values in
// the Result instead of failing the batch. Cache read problems degrade to a
// network fetch and cache write problems are recorded but never fail a URL.
package fetch
