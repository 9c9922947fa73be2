// Package attachment downloads message attachments and, when they exceed
// the destination webhook's size limit, iteratively recompresses them
// (§4.2), grounded on this codebase's Valkey-stream thumbnail worker but
// driven directly by the republisher's render step instead of a queue.
package attachment

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
)

// MaxBytes is the webhook attachment size limit from §4.2.
const MaxBytes = 7_500_000 // 7.5 MB

const (
	startQuality   = 85
	qualityStep    = 15
	minQuality     = 10
	startDimension = 2048
	maxAttempts    = 8
)

// ErrTooLarge is returned when no combination of quality/resize gets an
// image under MaxBytes within maxAttempts.
var ErrTooLarge = errors.New("attachment: could not compress under size limit")

// Prepared is a downloaded, possibly recompressed attachment ready to attach
// to a webhook execution, or a reference to report inline when compression
// failed.
type Prepared struct {
	Filename    string
	Data        []byte
	ContentType string
	Oversized   bool // true when the caller should fall back to a link
}

// Pool bounds concurrent CPU-bound recompression work so it never runs
// inline on the queue-consumer goroutine (§5).
type Pool struct {
	sem   chan struct{}
	http  *http.Client
}

// NewPool creates a Pool with size concurrent slots.
func NewPool(size int) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		sem:  make(chan struct{}, size),
		http: &http.Client{Timeout: 60 * time.Second},
	}
}

// Prepare downloads url and, if it exceeds MaxBytes, attempts iterative
// recompression. It blocks until a pool slot is free.
func (p *Pool) Prepare(ctx context.Context, url, filename string) (Prepared, error) {
	p.sem <- struct{}{}
	defer func() { <-p.sem }()

	data, contentType, err := p.download(ctx, url)
	if err != nil {
		return Prepared{}, err
	}

	if len(data) <= MaxBytes {
		return Prepared{Filename: filename, Data: data, ContentType: contentType}, nil
	}

	compressed, err := compress(data)
	if err != nil {
		return Prepared{Filename: filename, Oversized: true}, nil
	}
	return Prepared{Filename: withJPEGExt(filename), Data: compressed, ContentType: "image/jpeg"}, nil
}

func (p *Pool) download(ctx context.Context, url string) ([]byte, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("build download request: %w", err)
	}

	resp, err := p.http.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("download attachment: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return nil, "", fmt.Errorf("download attachment: status %d", resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, "", fmt.Errorf("read attachment body: %w", err)
	}

	return data, resp.Header.Get("Content-Type"), nil
}

// compress applies §4.2's iterative reduction: quality steps down from 85 by
// 15 to a floor of 10, and every two quality steps the target max dimension
// halves starting from 2048, until the encoded size is under MaxBytes or
// maxAttempts is exhausted.
func compress(data []byte) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	quality := startQuality
	dimension := startDimension

	for attempt := 0; attempt < maxAttempts; attempt++ {
		resized := img
		if dimension < startDimension {
			resized = imaging.Resize(img, dimension, 0, imaging.Lanczos)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, resized, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode jpeg: %w", err)
		}

		if buf.Len() <= MaxBytes {
			return buf.Bytes(), nil
		}

		if attempt%2 == 1 {
			dimension /= 2
		}
		quality -= qualityStep
		if quality < minQuality {
			quality = minQuality
		}
	}

	return nil, ErrTooLarge
}

func withJPEGExt(filename string) string {
	for i := len(filename) - 1; i >= 0; i-- {
		if filename[i] == '.' {
			return filename[:i] + ".jpg"
		}
	}
	return filename + ".jpg"
}
