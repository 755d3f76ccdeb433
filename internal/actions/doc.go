// Package actions holds the helpers around saved actions that sit outside
// the provider path: creativity presets, context composition for enhanced
// runs, the share format used to copy actions between installs, and the YAML
// file that seeds the action list.
package actions
