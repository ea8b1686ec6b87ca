// Package resources bundles keystores that can be referenced with the
// "embedded:" path prefix.
package resources

import "embed"

// FS holds the bundled keystores. dev-tsa.p12 is a development credential
// (password "qtsa-dev") and must not be used in production.
//
//go:embed *.p12
var FS embed.FS
