package ingester

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// formField is one metadata part of the inbound multipart body, kept in
// wire order so the element sees the fields exactly as the client sent
// them, and always before the file part.
type formField struct {
	name  string
	value string
}

// pendingUpload is an inbound upload caught mid-stream: every metadata
// field has been read, the file part is open, and not a byte of file
// content has been consumed yet.
type pendingUpload struct {
	fields      []formField
	filename    string
	contentType string
	body        io.Reader
}

// Forwarder streams a pending upload to one storage element.
type Forwarder struct {
	httpClient *http.Client
}

// NewForwarder creates a forwarder for element uploads. The client carries
// no timeout: large uploads legitimately run for minutes, and cancellation
// arrives through the request context.
func NewForwarder() *Forwarder {
	return &Forwarder{httpClient: &http.Client{}}
}

// Send re-emits the upload as a fresh multipart request against the
// element's upload endpoint, streaming the file part straight through.
// The caller owns the returned response body.
func (f *Forwarder) Send(ctx context.Context, apiURL, authorization string, up *pendingUpload) (*http.Response, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)

	go func() {
		pw.CloseWithError(writeMultipart(mw, up))
	}()

	url := strings.TrimRight(apiURL, "/") + "/api/v1/files/upload"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, pr)
	if err != nil {
		return nil, fmt.Errorf("failed to create element request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}

	resp, err := f.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload to element failed: %w", err)
	}
	return resp, nil
}

// writeMultipart emits the metadata fields first, then the file part. The
// element streams the body to disk, so this ordering is part of the wire
// contract, not a style choice.
func writeMultipart(mw *multipart.Writer, up *pendingUpload) error {
	for _, field := range up.fields {
		if err := mw.WriteField(field.name, field.value); err != nil {
			return fmt.Errorf("write field %s: %w", field.name, err)
		}
	}

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename=%q`, up.filename))
	if up.contentType != "" {
		header.Set("Content-Type", up.contentType)
	}
	part, err := mw.CreatePart(header)
	if err != nil {
		return fmt.Errorf("create file part: %w", err)
	}
	if _, err := io.Copy(part, up.body); err != nil {
		return fmt.Errorf("stream file part: %w", err)
	}
	return mw.Close()
}
