// Package server hosts the Fiber HTTP service, the request middleware chain,
// the player registry and the store bootstrap. Each mounted player owns one
// loader; the blob store, origin fetcher and handle registry are shared by all
// players and are built once at startup. Routes live in the routes subpackage
// and receive their dependencies through AppOptions.
package server
