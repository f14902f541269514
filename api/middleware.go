package api

import (
	"compress/gzip"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var errBodyTooLarge = errors.New("request body too large")

// GzipRequestMiddleware lets clients send gzip-encoded JSON bodies. The
// decompressed stream is capped at maxBodySize, so a small compressed
// payload cannot expand past the limit handlers enforce. A malformed gzip
// header is rejected with 400 before the handler runs.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !isGzipEncoded(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			gr, err := gzip.NewReader(req.Body)
			if err != nil {
				_ = req.Body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}
			req.Body = &inflatedBody{
				Reader: newCapReader(gr, maxBodySize),
				gz:     gr,
				raw:    req.Body,
			}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func isGzipEncoded(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

// inflatedBody reads the capped decompressed stream and closes both the
// gzip reader and the original body.
type inflatedBody struct {
	io.Reader
	gz  *gzip.Reader
	raw io.Closer
}

func (b *inflatedBody) Close() error {
	return errors.Join(b.gz.Close(), b.raw.Close())
}

// capReader passes through at most limit bytes and fails with
// errBodyTooLarge if the source has more.
type capReader struct {
	r         io.Reader
	remaining int64
}

func newCapReader(r io.Reader, limit int64) *capReader {
	return &capReader{r: r, remaining: limit}
}

func (c *capReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	if c.remaining <= 0 {
		var one [1]byte
		n, err := c.r.Read(one[:])
		if n > 0 {
			return 0, errBodyTooLarge
		}
		return 0, err
	}
	if int64(len(p)) > c.remaining {
		p = p[:c.remaining]
	}
	n, err := c.r.Read(p)
	c.remaining -= int64(n)
	return n, err
}
