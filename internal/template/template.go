// Package template carries the embedded presentation page served at the
// overlay root. The page is opaque to the core: it only consumes the
// websocket wire contract.
package template

import _ "embed"

//go:embed index.html
var page []byte

// Page returns the default overlay page
func Page() []byte {
	return page
}
