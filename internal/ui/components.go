package ui

import (
	"context"
	"fmt"
	"html"
	"io"
	"sort"

	"github.com/a-h/templ"
)

// File represents a single finalized upload for display.
type File struct {
	ID                string
	Filename          string
	Length            int64
	ChunkSize         int
	Chunks            int64
	UploadDate        string
	Checksum          string
	ChecksumAlgorithm string
	Metadata          map[string]string
}

// writeAll writes each part to w in order, stopping at the first error.
func writeAll(w io.Writer, parts ...string) error {
	for _, part := range parts {
		if _, err := io.WriteString(w, part); err != nil {
			return err
		}
	}
	return nil
}

// Layout renders a full HTML page with a title and body component.
func Layout(title string, body templ.Component) templ.Component {
	return templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		err := writeAll(w,
			"<!DOCTYPE html><html lang=\"en\">",
			"<head><meta charset=\"utf-8\">",
			"<meta name=\"viewport\" content=\"width=device-width, initial-scale=1\">",
			"<title>", html.EscapeString(title), "</title>",
			// Minimal modern CSS framework (Pico.css) via CDN.
			"<link rel=\"stylesheet\" href=\"https://unpkg.com/@picocss/pico@2/css/pico.min.css\">",
			"</head>",
			"<body><main class=\"container\">",
		)
		if err != nil {
			return err
		}

		if err := body.Render(ctx, w); err != nil {
			return err
		}

		return writeAll(w, "</main></body></html>")
	})
}

// FilesPage renders the list of finalized uploads.
func FilesPage(files []File) templ.Component {
	return Layout("Gridsilo - Files", templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		err := writeAll(w,
			"<section><header><h1>Gridsilo Files</h1>",
			"<p>Uploads are stored as fixed-size chunks plus one file record.</p></header>",
		)
		if err != nil {
			return err
		}

		if len(files) == 0 {
			return writeAll(w, "<p>No files uploaded yet.</p></section>")
		}

		err = writeAll(w, "<table><thead><tr><th>Filename</th><th>Size (bytes)</th><th>Chunks</th><th>Uploaded</th></tr></thead><tbody>")
		if err != nil {
			return err
		}

		for _, f := range files {
			row := fmt.Sprintf("<tr><td><a href=\"/view/%s\">%s</a></td><td>%d</td><td>%d</td><td>%s</td></tr>",
				html.EscapeString(f.ID), html.EscapeString(f.Filename), f.Length, f.Chunks, html.EscapeString(f.UploadDate))
			if err := writeAll(w, row); err != nil {
				return err
			}
		}

		return writeAll(w, "</tbody></table></section>")
	}))
}

// FilePage renders the record of a single upload.
func FilePage(f File) templ.Component {
	return Layout("Gridsilo - "+f.Filename, templ.ComponentFunc(func(ctx context.Context, w io.Writer) error {
		err := writeAll(w,
			"<section><header>",
			fmt.Sprintf("<h1>%s</h1>", html.EscapeString(f.Filename)),
			"<p><a href=\"/\">&larr; Back to files</a></p></header>",
			"<table><tbody>",
			fmt.Sprintf("<tr><th>ID</th><td><code>%s</code></td></tr>", html.EscapeString(f.ID)),
			fmt.Sprintf("<tr><th>Size (bytes)</th><td>%d</td></tr>", f.Length),
			fmt.Sprintf("<tr><th>Chunk size</th><td>%d</td></tr>", f.ChunkSize),
			fmt.Sprintf("<tr><th>Chunks</th><td>%d</td></tr>", f.Chunks),
			fmt.Sprintf("<tr><th>Uploaded</th><td>%s</td></tr>", html.EscapeString(f.UploadDate)),
			fmt.Sprintf("<tr><th>%s</th><td><code>%s</code></td></tr>", html.EscapeString(f.ChecksumAlgorithm), html.EscapeString(f.Checksum)),
			"</tbody></table>",
		)
		if err != nil {
			return err
		}

		if len(f.Metadata) == 0 {
			return writeAll(w, "</section>")
		}

		keys := make([]string, 0, len(f.Metadata))
		for key := range f.Metadata {
			keys = append(keys, key)
		}
		sort.Strings(keys)

		if err := writeAll(w, "<h2>Metadata</h2><table><tbody>"); err != nil {
			return err
		}
		for _, key := range keys {
			row := fmt.Sprintf("<tr><th>%s</th><td>%s</td></tr>", html.EscapeString(key), html.EscapeString(f.Metadata[key]))
			if err := writeAll(w, row); err != nil {
				return err
			}
		}
		return writeAll(w, "</tbody></table></section>")
	}))
}
