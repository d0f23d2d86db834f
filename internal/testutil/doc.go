// SPDX-License-Identifier: MPL-2.0

// Package testutil provides fixture and environment helpers shared by
// package tests. Helpers fail the test immediately instead of returning
// errors.
package testutil
