package updater

import (
	"errors"
	"html"
	"io"
	"mime"
	"net/http"
	"time"

	"provisioncode-go/x/fmtx"
	"provisioncode-go/x/strx"
)

const indexPage = `<!doctype html>
<title>%s</title>
<h1>%s</h1>
<ul>
<li>state: serving updates</li>
<li>ssid: %s</li>
<li>address: %s</li>
<li>version: %s</li>
<li>uptime: %s</li>
</ul>
<p><a href="/update">upload firmware</a></p>
`

const updatePage = `<!doctype html>
<title>firmware update</title>
<h1>Firmware update</h1>
<form method="post" action="/update" enctype="multipart/form-data">
<input type="file" name="firmware" required>
<button type="submit">Upload</button>
</form>
`

func (s *Service) routes(inst *instance) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleIndex(inst))
	mux.HandleFunc("GET /update", s.handleForm)
	mux.HandleFunc("POST /update", s.handleUpload)
	s.hub.install(mux)
	return mux
}

func (s *Service) handleIndex(inst *instance) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		name := strx.Coalesce(s.opts.Name, "provisioner")
		uptime := s.clock.Now().Sub(s.boot).Round(time.Second)
		fmtx.Fprintf(w, indexPage,
			html.EscapeString(name),
			html.EscapeString(name),
			html.EscapeString(inst.link.SSID),
			html.EscapeString(inst.link.Addr),
			html.EscapeString(s.opts.Version),
			uptime)
	}
}

func (s *Service) handleForm(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	io.WriteString(w, updatePage)
}

func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	if err := s.beginUpload(); err != nil {
		http.Error(w, err.Error(), http.StatusConflict)
		return
	}
	defer s.endUpload()

	body, total, err := uploadReader(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	sink, err := s.opts.Sink()
	if err != nil {
		http.Error(w, "sink unavailable", http.StatusInternalServerError)
		return
	}

	s.publishBegin(total)
	done, sum, err := s.stream(sink, body, total)
	if err == nil && done == 0 {
		err = errors.New("empty upload")
	}
	if err != nil {
		sink.Abort()
		s.publishEnd(false, err.Error(), done, "")
		status := http.StatusInternalServerError
		if done == 0 {
			status = http.StatusBadRequest
		}
		http.Error(w, "upload failed: "+err.Error(), status)
		return
	}

	s.publishEnd(true, "", done, sum)
	fmtx.Fprintf(w, "received %d bytes sha256 %s\n", done, sum)
}

// stream copies the image into the sink in small chunks, narrating progress
// per chunk. The caller owns Abort on error.
func (s *Service) stream(sink Sink, r io.Reader, total int64) (int64, string, error) {
	buf := make([]byte, 4096)
	var done int64
	for {
		n, err := r.Read(buf)
		if n > 0 {
			if _, werr := sink.Write(buf[:n]); werr != nil {
				return done, "", werr
			}
			done += int64(n)
			s.publishProgress(done, total)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return done, "", err
		}
	}
	bytes, sum, err := sink.Commit()
	if err != nil {
		return done, "", err
	}
	return bytes, sum, nil
}

// uploadReader picks the image stream out of the request: multipart field
// "firmware", or the raw body. Multipart size is unknown up front.
func uploadReader(r *http.Request) (io.Reader, int64, error) {
	mt, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err == nil && mt == "multipart/form-data" {
		mr, err := r.MultipartReader()
		if err != nil {
			return nil, 0, err
		}
		for {
			part, err := mr.NextPart()
			if err == io.EOF {
				return nil, 0, errors.New("no firmware field")
			}
			if err != nil {
				return nil, 0, err
			}
			if part.FormName() == "firmware" {
				return part, -1, nil
			}
		}
	}
	return r.Body, r.ContentLength, nil
}
