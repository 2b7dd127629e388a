package push

import (
	"bufio"
	"io"
	"strings"
)

// frame is one decoded server-sent event.
type frame struct {
	event string
	data  string
}

// frameReader decodes server-sent events from a live stream, one frame
// at a time. The stock SSE decoders read to EOF, which never comes on a
// long-lived connection, so frames are assembled line by line here.
type frameReader struct {
	r *bufio.Reader
}

func newFrameReader(r io.Reader) *frameReader {
	return &frameReader{r: bufio.NewReader(r)}
}

// next blocks until a complete frame arrives. Comment lines and fields
// other than event/data are skipped; multiple data lines are joined with
// a newline, per the SSE wire format.
func (fr *frameReader) next() (frame, error) {
	var f frame
	var data []string
	for {
		line, err := fr.r.ReadString('\n')
		if err != nil {
			return frame{}, err
		}
		line = strings.TrimRight(line, "\r\n")

		if line == "" {
			if len(data) == 0 && f.event == "" {
				continue
			}
			f.data = strings.Join(data, "\n")
			return f, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}

		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			f.event = value
		case "data":
			data = append(data, value)
		}
	}
}
