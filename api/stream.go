package api

import (
	"net/http"

	"github.com/bytedance/sonic"
	"github.com/labstack/echo/v4"
)

// stream pushes the filtered board as a server-sent event on connect and
// after every board change until the client goes away.
func (s *Server) stream(c echo.Context) error {
	res := c.Response()
	flusher, ok := res.Writer.(http.Flusher)
	if !ok {
		return c.String(http.StatusInternalServerError, "stream unsupported")
	}
	res.Header().Set(echo.HeaderContentType, "text/event-stream")
	res.Header().Set(echo.HeaderCacheControl, "no-cache")
	res.Header().Set(echo.HeaderConnection, "keep-alive")
	res.Header().Set("X-Accel-Buffering", "no")
	res.WriteHeader(http.StatusOK)

	ctx := c.Request().Context()
	ch, cancel := s.board.Subscribe()
	defer cancel()
	for {
		data, err := sonic.ConfigStd.Marshal(newVisibleBoard(s.board.State()))
		if err != nil {
			s.logger.WithError(err).Error("encode board event")
			return nil
		}
		if err := writeEvent(res, data); err != nil {
			s.logger.WithError(err).Debug("stream client write failed")
			return nil
		}
		flusher.Flush()
		select {
		case <-ctx.Done():
			return nil
		case <-ch:
		}
	}
}

func writeEvent(w http.ResponseWriter, data []byte) error {
	if _, err := w.Write([]byte("data: ")); err != nil {
		return err
	}
	if _, err := w.Write(data); err != nil {
		return err
	}
	_, err := w.Write([]byte("\n\n"))
	return err
}
