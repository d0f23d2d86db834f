// SPDX-License-Identifier: MPL-2.0

// Command closure-util manages goog.provide/goog.require dependencies and
// serves Closure projects during development.
package main

import cmd "github.com/akkumar/closure-util/cmd/closureutil"

func main() {
	cmd.Execute()
}
