package portal

import (
	"encoding/json"
	"html"
	"net/http"
	"strings"

	"provisioncode-go/types"
	"provisioncode-go/x/fmtx"
	"provisioncode-go/x/timex"
)

const setupPage = `<!doctype html>
<title>%s setup</title>
<h1>%s setup</h1>
<p>%s</p>
<form method="post" action="/save">
<label>Network <input name="ssid" required></label><br>
<label>Passphrase <input name="passphrase" type="password"></label><br>
<button type="submit">Save and join</button>
</form>
<form method="post" action="/erase">
<button type="submit">Forget saved network</button>
</form>
`

const joiningPage = `<!doctype html>
<title>joining</title>
<h1>Joining %s</h1>
<p>The setup network will drop while the device tries the new
credentials. If it reappears, the join failed and you can retry here.</p>
`

func (s *Service) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleForm)
	mux.HandleFunc("POST /save", s.handleSave)
	mux.HandleFunc("POST /erase", s.handleErase)
	mux.HandleFunc("GET /info", s.handleInfo)
	return mux
}

func (s *Service) handleForm(w http.ResponseWriter, r *http.Request) {
	saved := "No saved network."
	if cred, err := s.store.Load(); err == nil {
		saved = "Saved network: <b>" + html.EscapeString(cred.SSID) + "</b>"
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	name := html.EscapeString(s.opts.Name)
	fmtx.Fprintf(w, setupPage, name, name, saved)
}

func (s *Service) handleSave(w http.ResponseWriter, r *http.Request) {
	ssid := strings.TrimSpace(r.FormValue("ssid"))
	if ssid == "" {
		http.Error(w, "ssid required", http.StatusBadRequest)
		return
	}
	cred := types.Credential{SSID: ssid, Passphrase: r.FormValue("passphrase")}
	if err := s.store.Save(cred); err != nil {
		http.Error(w, "store failed", http.StatusInternalServerError)
		return
	}
	println("CONFIG: credentials saved for " + ssid)

	// Answer before switching networks: the client is on the AP that is
	// about to go away.
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	fmtx.Fprintf(w, joiningPage, html.EscapeString(ssid))

	go s.join(cred)
}

func (s *Service) handleErase(w http.ResponseWriter, r *http.Request) {
	if err := s.store.Erase(); err != nil {
		http.Error(w, "store failed", http.StatusInternalServerError)
		return
	}
	println("CONFIG: credentials erased")
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

func (s *Service) handleInfo(w http.ResponseWriter, r *http.Request) {
	cred, err := s.store.Load()
	info := struct {
		Name      string `json:"name"`
		Version   string `json:"version,omitempty"`
		APSSID    string `json:"ap_ssid"`
		Saved     bool   `json:"saved"`
		SavedSSID string `json:"saved_ssid,omitempty"`
		TS        int64  `json:"ts_ms"`
	}{
		Name:      s.opts.Name,
		Version:   s.opts.Version,
		APSSID:    s.cfg.SSID,
		Saved:     err == nil,
		SavedSSID: cred.SSID,
		TS:        timex.NowMs(),
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}
