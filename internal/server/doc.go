// SPDX-License-Identifier: MPL-2.0

// Package server provides the development HTTP server.
//
// Requests under the loader prefix are answered from the dependency
// manager: a request for the bare prefix returns a bootstrap script that
// writes one script tag per dependency of the requested main, and a request
// for prefix plus an absolute path returns that managed script. Every other
// request is served from the static root, with generated listings for
// directories that have no index.html. Connected browsers receive manager
// errors and updates over a websocket push channel.
package server
