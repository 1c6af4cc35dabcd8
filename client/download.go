package client

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"golang.org/x/term"
)

const maxImageSize = 32 << 20

var unsafeNameChars = regexp.MustCompile(`[^a-z0-9._-]+`)

// ProgressOutput returns stderr when it is a terminal, otherwise nil so that
// no progress bar is drawn into logs or pipes.
func ProgressOutput() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return os.Stderr
	}
	return nil
}

// DownloadImage streams the image at imageURL into w and returns the number of
// bytes written. A non-nil progress writer gets a progress bar.
func DownloadImage(ctx context.Context, httpClient *http.Client, imageURL string, w io.Writer, progress io.Writer) (int64, error) {
	if httpClient == nil {
		httpClient = NewHTTPClient("", DefaultRequestTimeout, DefaultRequestsPerMinute)
	}
	req, err := createRequest(ctx, imageURL, "")
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	resp, err := sendRequest(httpClient, req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.ContentLength > maxImageSize {
		return 0, fmt.Errorf("%w: image is %d bytes, limit is %d", ErrMalformedResponse, resp.ContentLength, maxImageSize)
	}

	// One byte past the cap tells an oversized body apart from one that fits exactly.
	var src io.Reader = io.LimitReader(resp.Body, maxImageSize+1)
	if progress != nil {
		bar := progressbar.NewOptions64(
			resp.ContentLength,
			progressbar.OptionSetDescription("Downloading image"),
			progressbar.OptionSetWriter(progress),
			progressbar.OptionSetWidth(40),
			progressbar.OptionShowBytes(true),
			progressbar.OptionThrottle(100*time.Millisecond),
			progressbar.OptionClearOnFinish(),
		)
		defer bar.Close()
		src = io.TeeReader(src, bar)
	}

	n, err := io.Copy(w, src)
	if err != nil {
		log.Error().Err(err).Str("url", imageURL).Msg("Failed to download image")
		return n, fmt.Errorf("%w: %w", ErrTransport, err)
	}
	if n > maxImageSize {
		log.Error().Str("url", imageURL).Msg("Image exceeds the size limit")
		return n, fmt.Errorf("%w: image exceeds %d bytes", ErrMalformedResponse, maxImageSize)
	}
	log.Debug().Str("url", imageURL).Int64("bytes", n).Msg("Image downloaded")
	return n, nil
}

// DownloadImageToDir saves the image under dir, naming the file after the title.
func DownloadImageToDir(ctx context.Context, httpClient *http.Client, imageURL, title, mediaType, dir string, progress io.Writer) (string, error) {
	if err := ensureDirExists(dir); err != nil {
		return "", err
	}
	path := filepath.Join(dir, FileName(title, mediaType))
	file, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("failed to create file %s: %w", path, err)
	}

	if _, err := DownloadImage(ctx, httpClient, imageURL, file, progress); err != nil {
		file.Close()
		_ = os.Remove(path)
		return "", err
	}
	if err := file.Close(); err != nil {
		return "", fmt.Errorf("failed to close file %s: %w", path, err)
	}
	return path, nil
}

// SanitizePath lowercases name and strips everything that is unsafe in a file name.
func SanitizePath(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	name = strings.ReplaceAll(name, " ", "-")
	name = unsafeNameChars.ReplaceAllString(name, "")
	name = strings.Trim(name, ".-")
	if len(name) > 80 {
		name = strings.TrimRight(name[:80], ".-")
	}
	return name
}

// FileName builds a file name from a title and an optional extension.
func FileName(title, mediaType string) string {
	base := SanitizePath(title)
	if base == "" {
		base = "cheer"
	}
	ext := SanitizePath(mediaType)
	if ext == "" {
		return base
	}
	return base + "." + ext
}

func ensureDirExists(path string) error {
	info, err := os.Stat(path)
	if err == nil {
		if !info.IsDir() {
			return fmt.Errorf("path %s exists but is not a directory", path)
		}
		return nil
	}
	if os.IsNotExist(err) {
		log.Info().Msgf("Creating directory: %s", path)
		return os.MkdirAll(path, 0o755)
	}
	return err
}
