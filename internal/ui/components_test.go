package ui_test

import (
	"bytes"
	"context"
	"testing"

	"gridsilo/internal/ui"

	"github.com/stretchr/testify/require"
)

func TestFilesPageEscapesNames(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := ui.FilesPage([]ui.File{{
		ID:         "cq1",
		Filename:   "<script>.txt",
		Length:     42,
		Chunks:     2,
		UploadDate: "2024-05-01T12:00:00Z",
	}}).Render(context.Background(), &buf)
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "<!DOCTYPE html>")
	require.Contains(t, out, "&lt;script&gt;.txt")
	require.NotContains(t, out, "<script>.txt")
	require.Contains(t, out, "href=\"/view/cq1\"")
	require.Contains(t, out, "<td>42</td>")
}

func TestFilesPageEmpty(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	require.NoError(t, ui.FilesPage(nil).Render(context.Background(), &buf))
	require.Contains(t, buf.String(), "No files uploaded yet.")
}

func TestFilePageShowsSortedMetadata(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	err := ui.FilePage(ui.File{
		ID:                "cq1",
		Filename:          "report.pdf",
		ChecksumAlgorithm: "md5",
		Checksum:          "d41d8cd98f00b204e9800998ecf8427e",
		Metadata:          map[string]string{"zeta": "last", "alpha": "first"},
	}).Render(context.Background(), &buf)
	require.NoError(t, err)

	out := buf.String()
	require.Contains(t, out, "d41d8cd98f00b204e9800998ecf8427e")
	require.Less(t, bytes.Index(buf.Bytes(), []byte("alpha")), bytes.Index(buf.Bytes(), []byte("zeta")))
}
