// Package testutil holds deterministic helpers shared by tests.
package testutil
