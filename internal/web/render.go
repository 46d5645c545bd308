package web

import (
	"bytes"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/yuin/goldmark"

	"github.com/hpungsan/ctxbridge/internal/clip"
	"github.com/hpungsan/ctxbridge/internal/errors"
)

// maxBodyBytes caps request bodies. Page captures carry whole documents.
const maxBodyBytes = 8 << 20

// decodeBody reads a JSON body into dst. An empty body leaves dst unchanged.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if stderrors.Is(err, io.EOF) {
			return nil
		}
		var tooLarge *http.MaxBytesError
		if stderrors.As(err, &tooLarge) {
			return errors.NewValidation(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return errors.NewValidation("invalid request body: " + err.Error())
	}
	return nil
}

// errorView is the JSON shape of a failed operation.
type errorView struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Status  int    `json:"status"`
}

// viewError converts err for clients. Errors that are not BridgeErrors, and
// internal errors with a cause, are reported without detail.
func viewError(err error) errorView {
	be, ok := errors.As(err)
	if !ok {
		be = errors.NewInternal(err)
	}
	message := be.Message
	if be.Code == errors.ErrInternal && be.Err != nil {
		message = "an internal error occurred"
	}
	return errorView{Code: string(be.Code), Message: message, Status: be.Status}
}

// renderError writes err as {"error": {code, message, status}}.
func renderError(w http.ResponseWriter, err error) {
	v := viewError(err)
	renderJSON(w, v.Status, map[string]errorView{"error": v})
}

// renderJSON writes a JSON response.
func renderJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// renderMarkdown converts markdown text to HTML using goldmark. Raw HTML in
// the source is omitted.
func renderMarkdown(md string) template.HTML {
	var buf bytes.Buffer
	if err := goldmark.Convert([]byte(md), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(md))
	}
	return template.HTML(buf.String())
}

var previewPage = template.Must(template.New("preview").Parse(`<!doctype html>
<html lang="en">
<head><meta charset="utf-8"><title>{{.Title}}</title></head>
<body>
<article>
<header>
<h1>{{.Title}}</h1>
<p>{{if .URL}}<a href="{{.URL}}" rel="noreferrer">{{.URL}}</a> · {{end}}{{.Type}} · {{.Tokens}} tokens · {{.Chars}} chars · {{.Captured}}</p>
</header>
{{.Body}}
</article>
</body>
</html>
`))

type previewData struct {
	Title    string
	URL      string
	Type     clip.Type
	Tokens   string
	Chars    string
	Captured string
	Body     template.HTML
}

// renderPreview writes a standalone HTML rendering of a clip.
func renderPreview(w http.ResponseWriter, it clip.Item) error {
	title := it.Metadata.SourceTitle
	if title == "" {
		title = "Untitled clip"
	}
	var buf bytes.Buffer
	err := previewPage.Execute(&buf, previewData{
		Title:    title,
		URL:      it.Metadata.SourceURL,
		Type:     it.Type,
		Tokens:   formatChars(it.TokenEstimate),
		Chars:    formatChars(len([]rune(it.Content))),
		Captured: formatTime(it.Metadata.Timestamp),
		Body:     renderMarkdown(it.Content),
	})
	if err != nil {
		return errors.NewInternal(err)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
	return nil
}

// formatTime formats a Unix millisecond timestamp as "2006-01-02 15:04" UTC.
func formatTime(unixMilli int64) string {
	return time.UnixMilli(unixMilli).UTC().Format("2006-01-02 15:04")
}

// formatChars formats an integer with comma thousands separators.
func formatChars(n int) string {
	if n < 0 {
		return "-" + formatChars(-n)
	}
	s := fmt.Sprintf("%d", n)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if result.Len() > 0 {
			result.WriteByte(',')
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
