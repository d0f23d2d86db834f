// SPDX-License-Identifier: MPL-2.0

package testutil

import "testing"

// BaseJS is a minimal Closure base script.
const BaseJS = `/**
 * @fileoverview Fixture base.
 * @provideGoog
 */
var goog = goog || {};
`

// VehicleProject writes a project with a base script, five library
// scripts under lib/ and two entry scripts, and returns its root.
//
//	main-car.js  -> car  -> fuel, vehicle
//	main-boat.js -> boat -> fuel, vehicle
func VehicleProject(t testing.TB) string {
	t.Helper()
	root := t.TempDir()
	WriteTree(t, root, map[string]string{
		"goog/base.js":   BaseJS,
		"lib/boat.js":    "goog.provide('boat');\ngoog.require('fuel');\ngoog.require('vehicle');\n",
		"lib/car.js":     "goog.provide('car');\ngoog.require('fuel');\ngoog.require('vehicle');\n",
		"lib/fuel.js":    "goog.provide('fuel');\n",
		"lib/truck.js":   "goog.provide('truck');\ngoog.require('fuel');\ngoog.require('vehicle');\n",
		"lib/vehicle.js": "goog.provide('vehicle');\n",
		"main-boat.js":   "goog.require('boat');\n",
		"main-car.js":    "goog.require('car');\n",
	})
	return root
}
