// Package calibration converts a physical reference measurement into a
// pixels-per-millimeter scale and an acuity level into the on-screen diameter
// of its Landolt C. It contains:
//
//   - ComputeScale, SizeInMillimeters, SizeInPixels: stateless conversions
//   - ReferenceObject: the known-width objects a user can hold to the screen
//   - Parameters: the setup-phase settings, frozen while a test is running
//   - Settings: a value snapshot of Parameters exposed via HTTP APIs
//
// These types are shared across daemon, client and chart code to keep JSON
// contracts consistent.
package calibration
