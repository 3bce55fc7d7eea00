//go:build rp2040 || rp2350

package updater

import "net/http"

// hub is compiled out on device builds; /events exists only where the
// websocket stack does.
type hub struct{}

func newHub() *hub { return &hub{} }

func (*hub) install(*http.ServeMux) {}

func (*hub) broadcast(any) {}
